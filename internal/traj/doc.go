// Package traj reads molecular dynamics trajectory files.
//
// A [Reader] exposes the [Metadata] gathered when the file is opened (atom
// count, box, sample rate, species and the column groups that make up each
// property) and then streams [Frame] values one configuration at a time:
//
//	r, err := traj.Open("nacl.lammpstraj", traj.FormatAuto, traj.Options{})
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	for {
//	    f, err := r.Next(ctx)
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    ...
//	}
//
// Two formats are supported: LAMMPS text dumps ([OpenLAMMPS]) and extended
// XYZ ([OpenEXTXYZ]).
package traj
