// Package transform derives new properties from the ones stored in an
// experiment database.
//
// A [Transformation] reads one or more input properties in memory-bounded
// batches of configurations and writes a single output property. Species
// transformations write one dataset per species ("Na/Unwrapped_Positions");
// system transformations reduce every species into one dataset stored under
// a group named after the property ("Ionic_Current/Ionic_Current").
//
// A [Registry] knows which transformation produces a property, and
// [Registry.Ensure] runs the chain needed to make a property available:
//
//	reg := transform.NewRegistry()
//	if err := reg.Ensure(ctx, exp, traj.UnwrappedPositions); err != nil {
//		return err
//	}
package transform
