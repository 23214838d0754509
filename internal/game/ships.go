package game

import (
	"fmt"
	"sort"
)

// ConfigProvider looks up physics constants by ship class.
type ConfigProvider interface {
	PhysicsConfig(class string) (PhysicsConfig, bool)
}

// ShipClasses is a static ConfigProvider.
type ShipClasses map[string]PhysicsConfig

func (s ShipClasses) PhysicsConfig(class string) (PhysicsConfig, bool) {
	cfg, ok := s[class]
	return cfg, ok
}

// Names returns the class keys in sorted order.
func (s ShipClasses) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate sanitizes every class in place and rejects unusable ones.
func (s ShipClasses) Validate() error {
	for _, name := range s.Names() {
		cfg := SanitizePhysicsConfig(s[name])
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("ship class %q: %w", name, err)
		}
		s[name] = cfg
	}
	return nil
}

// DefaultShipClasses returns the built-in hulls.
func DefaultShipClasses() ShipClasses {
	interceptor := DefaultPhysicsConfig()

	hauler := DefaultPhysicsConfig()
	hauler.ForwardAccel = 30
	hauler.ReverseAccel = 20
	hauler.StrafeAccel = 12
	hauler.YawAccel = 1.5
	hauler.MaxForwardSpeed = 120
	hauler.MaxReverseSpeed = 40
	hauler.MaxLateralSpeed = 40
	hauler.MaxYawRate = 1.2
	hauler.Mass = 40000
	hauler.Inertia = 400000
	hauler.CrewGLimit = 5
	hauler.CollisionRadius = 24
	hauler.MaxHealth = 300

	return ShipClasses{
		DefaultShipKey: interceptor,
		"hauler":       hauler,
	}
}
