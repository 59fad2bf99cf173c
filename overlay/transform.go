package overlay

import (
	"math"
	"math/rand/v2"
)

type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Neg() Vec3 { return Vec3{-v.X, -v.Y, -v.Z} }
func (v Vec3) Length() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3) Cross(o Vec3) Vec3 { return Vec3{v.Y*o.Z - v.Z*o.Y, v.Z*o.X - v.X*o.Z, v.X*o.Y - v.Y*o.X} }
func (v Vec3) Normalize() Vec3 { return v.Scale(1 / v.Length()) }
func (v Vec3) IsZero() bool { return v.X == 0 && v.Y == 0 && v.Z == 0 }

// mat4 is row-major with row vectors: a point p maps to p*M and the
// translation sits in row 3.
type mat4 [4][4]float64

func identity() mat4 {
	return mat4{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
}

func (a mat4) mul(b mat4) mat4 {
	var r mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			for k := 0; k < 4; k++ {
				r[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return r
}

// world builds an orientation whose -Z axis points along forward. When
// forward is parallel to up, world Z stands in for up.
func world(position, forward, up Vec3) mat4 {
	z := forward.Neg().Normalize()
	x := up.Cross(z)
	if x.Length() < 1e-9 {
		x = Vec3{0, 0, 1}.Cross(z)
	}
	x = x.Normalize()
	y := z.Cross(x)
	return mat4{
		{x.X, x.Y, x.Z, 0},
		{y.X, y.Y, y.Z, 0},
		{z.X, z.Y, z.Z, 0},
		{position.X, position.Y, position.Z, 1},
	}
}

func rotationZ(rad float64) mat4 {
	s, c := math.Sincos(rad)
	m := identity()
	m[0][0], m[0][1] = c, s
	m[1][0], m[1][1] = -s, c
	return m
}

func translation(v Vec3) mat4 {
	m := identity()
	m[3][0], m[3][1], m[3][2] = v.X, v.Y, v.Z
	return m
}

// toMatrix34 transposes into the compositor's column-vector layout.
func (a mat4) toMatrix34() Matrix34 {
	var m Matrix34
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			m[row][col] = float32(a[col][row])
		}
	}
	return m
}

// IconTransform returns the head-relative pose that places the icon at
// offset, facing the eyes. The look-at uses world-down as up and then spins
// 180 degrees about Z so the texture ends up upright.
func IconTransform(offset Vec3) Matrix34 {
	if offset.IsZero() {
		return translation(offset).toMatrix34()
	}
	rot := world(Vec3{}, offset.Normalize(), Vec3{0, -1, 0})
	rot = rot.mul(rotationZ(math.Pi))
	return rot.mul(translation(offset)).toMatrix34()
}

// RandomizeOffset nudges offset by size meters in a random direction.
func RandomizeOffset(offset Vec3, size float64, rng *rand.Rand) Vec3 {
	return offset.Add(randomUnitVector(rng).Scale(size))
}

func randomUnitVector(rng *rand.Rand) Vec3 {
	for {
		v := Vec3{signedUnit(rng), signedUnit(rng), signedUnit(rng)}
		if l := v.Length(); l > 1e-9 {
			return v.Scale(1 / l)
		}
	}
}

func signedUnit(rng *rand.Rand) float64 {
	v := rng.Float64()
	if rng.Float64() > 0.5 {
		return v
	}
	return -v
}
