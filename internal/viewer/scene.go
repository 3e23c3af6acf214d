package viewer

import (
	"math"

	"github.com/cad-viewer/backend/internal/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Camera is a perspective camera aimed at Target.
type Camera struct {
	FOV      float64 // vertical, degrees
	Near     float64
	Far      float64
	Position r3.Vec
	Target   r3.Vec
	Up       r3.Vec
}

// NewCamera returns the initial camera: fov 50 at (0, 0, 5).
func NewCamera() *Camera {
	return &Camera{
		FOV:      50,
		Near:     0.1,
		Far:      2000,
		Position: r3.Vec{Z: 5},
		Up:       r3.Vec{Y: 1},
	}
}

// LookAt aims the camera at target.
func (c *Camera) LookAt(target r3.Vec) {
	c.Target = target
}

// Direction returns the unit view direction, or -Z when the camera sits
// on its target.
func (c *Camera) Direction() r3.Vec {
	d := r3.Sub(c.Target, c.Position)
	if r3.Norm(d) == 0 {
		return r3.Vec{Z: -1}
	}
	return r3.Unit(d)
}

// LightKind identifies a light type.
type LightKind string

const (
	LightAmbient     LightKind = "ambient"
	LightDirectional LightKind = "directional"
	LightSpot        LightKind = "spot"
)

// Light is one entry of the lighting rig.
type Light struct {
	Kind       LightKind
	Color      [3]float64
	Intensity  float64
	Position   r3.Vec
	CastShadow bool
	Angle      float64 // spot cone half-angle, radians
	Penumbra   float64
}

// DefaultLights returns the fixed rig: ambient, directional and spot.
func DefaultLights() []Light {
	white := [3]float64{1, 1, 1}
	return []Light{
		{Kind: LightAmbient, Color: white, Intensity: 0.8},
		{Kind: LightDirectional, Color: white, Intensity: 2, Position: r3.Vec{X: 5, Y: 10, Z: 5}, CastShadow: true},
		{Kind: LightSpot, Color: white, Intensity: 2, Position: r3.Vec{X: 10, Y: 15, Z: 10}, Angle: 0.3, Penumbra: 1},
	}
}

// EnvironmentPreset names the reflection environment.
const EnvironmentPreset = "city"

// OrbitControls holds the orbit-style camera control settings.
type OrbitControls struct {
	Target          r3.Vec
	EnableDamping   bool
	DampingFactor   float64
	AutoRotate      bool
	AutoRotateSpeed float64 // turns per minute
}

// NewOrbitControls returns damped, auto-rotating controls.
func NewOrbitControls() *OrbitControls {
	return &OrbitControls{
		EnableDamping:   true,
		DampingFactor:   0.1,
		AutoRotate:      true,
		AutoRotateSpeed: 1,
	}
}

// Update advances auto-rotation by dt seconds, orbiting cam about the
// controls' target around the vertical axis. It returns the angle turned.
func (o *OrbitControls) Update(cam *Camera, dt float64) float64 {
	if !o.AutoRotate || dt <= 0 {
		return 0
	}
	angle := 2 * math.Pi / 60 * o.AutoRotateSpeed * dt

	offset := r3.Sub(cam.Position, o.Target)
	radius := math.Hypot(offset.X, offset.Z)
	theta := math.Atan2(offset.X, offset.Z) - angle
	offset.X = radius * math.Sin(theta)
	offset.Z = radius * math.Cos(theta)

	cam.Position = r3.Add(o.Target, offset)
	cam.LookAt(o.Target)
	return angle
}

// Scene is the live 3D scene: the model group, camera and static rig.
type Scene struct {
	Group       *mesh.Node
	Camera      *Camera
	Lights      []Light
	Environment string
	Controls    *OrbitControls
}

// NewScene builds an empty scene with the static configuration attached.
func NewScene() *Scene {
	return &Scene{
		Group:       mesh.NewGroup("model"),
		Camera:      NewCamera(),
		Lights:      DefaultLights(),
		Environment: EnvironmentPreset,
		Controls:    NewOrbitControls(),
	}
}

// Empty reports whether the scene displays no model.
func (s *Scene) Empty() bool {
	return len(s.Group.Children) == 0
}
