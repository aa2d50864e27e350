package viz

import "math"

// View orients a configuration before it is projected onto the canvas.
// Angles are in radians; the projection is orthographic along z.
type View struct {
	RotX, RotY float64
}

func (v View) rotate(p [3]float64) [3]float64 {
	cx, sx := math.Cos(v.RotX), math.Sin(v.RotX)
	p[1], p[2] = p[1]*cx-p[2]*sx, p[1]*sx+p[2]*cx
	cy, sy := math.Cos(v.RotY), math.Sin(v.RotY)
	p[0], p[2] = p[0]*cy+p[2]*sy, -p[0]*sy+p[2]*cy
	return p
}

func boxCorners(box [3]float64) [8][3]float64 {
	var corners [8][3]float64
	for i := range corners {
		for d := 0; d < 3; d++ {
			if i&(1<<d) != 0 {
				corners[i][d] = box[d]
			}
		}
	}
	return corners
}

// RenderConfiguration draws the simulation box edges and one dot per atom,
// scaled so the rotated box fills the canvas.
func RenderConfiguration(c *Canvas, positions [][3]float64, box [3]float64, v View) {
	centre := [3]float64{box[0] / 2, box[1] / 2, box[2] / 2}
	shift := func(p [3]float64) [3]float64 {
		return v.rotate([3]float64{p[0] - centre[0], p[1] - centre[1], p[2] - centre[2]})
	}

	corners := boxCorners(box)
	extent := 0.0
	for i := range corners {
		corners[i] = shift(corners[i])
		extent = max(extent, math.Abs(corners[i][0]), math.Abs(corners[i][1]))
	}
	if extent == 0 {
		extent = 1
	}

	dotsX, dotsY := float64(c.Width*2-1), float64(c.Height*4-1)
	scale := min(dotsX, dotsY) / (2 * extent)
	project := func(p [3]float64) (int, int) {
		x := dotsX/2 + p[0]*scale
		y := dotsY/2 - p[1]*scale
		return int(math.Round(x)), int(math.Round(y))
	}

	for i := range corners {
		for d := 0; d < 3; d++ {
			j := i | 1<<d
			if j == i {
				continue
			}
			x0, y0 := project(corners[i])
			x1, y1 := project(corners[j])
			c.DrawLine(x0, y0, x1, y1)
		}
	}
	for _, p := range positions {
		c.Set(project(shift(p)))
	}
}
