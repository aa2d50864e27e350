// Package project manages MDSuite projects and their experiments.
//
// A [Project] is a directory holding a SQLite database (project.db) that
// records experiments, their species and properties, the trajectory files
// already ingested and every cached [Computation]. Each [Experiment] owns a
// sub-directory:
//
//	<storage>/<project>/<experiment>/
//	    databases/database.bolt   simulation data, see package database
//	    figures/                  SVG figures written by exports
//	    logfiles/                 calculator logs
//
// Experiments carry a version number that is bumped whenever their data or
// species attributes change; cached computations are only reused for the
// version they were computed on.
package project
