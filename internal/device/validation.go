package device

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

// Validation constants.
const (
	maxIDLength   = 128
	maxNameLength = 100
	maxPort       = 65535
)

// reservedIDChars cannot appear in a device ID. The ID becomes one
// routing-key token (command.<subtype>.<id>, shutdown.<id>), and these
// characters split or widen the key on the bus.
const reservedIDChars = "./+#*"

// ValidateID checks that id is usable as a single routing-key token.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidRecord, maxIDLength)
	}
	if strings.ContainsAny(id, reservedIDChars) || strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: id %q contains whitespace or one of %q", ErrInvalidRecord, id, reservedIDChars)
	}
	return nil
}

// ValidatePatch checks a patch on its own, before it is merged.
func ValidatePatch(p Patch) error {
	if err := ValidateID(p.ID); err != nil {
		return err
	}
	if p.Name != nil && len(*p.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidRecord, maxNameLength)
	}

	if p.Subtype != "" && !p.Subtype.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSubtype, p.Subtype)
	}
	if p.Kind != "" && p.Kind != KindSensor && p.Kind != KindActuator {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, p.Kind)
	}
	if p.Kind != "" && p.Subtype != "" && p.Subtype.Kind() != p.Kind {
		return fmt.Errorf("%w: subtype %s is not a %s", ErrInvalidRecord, p.Subtype, p.Kind)
	}

	for name, v := range map[string]*float64{
		"temperature": p.Temperature,
		"luminosity":  p.Luminosity,
		"brightness":  p.Brightness,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidRecord, name)
		}
	}

	if p.Endpoint != nil && (p.Endpoint.Port < 0 || p.Endpoint.Port > maxPort) {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidRecord, p.Endpoint.Port)
	}
	return nil
}

// checkState validates a state against the subtype the record will have.
func checkState(subtype Subtype, state *string) error {
	if state == nil {
		return nil
	}
	if !subtype.ValidState(*state) {
		return fmt.Errorf("%w: %q for %s", ErrInvalidState, *state, subtype)
	}
	return nil
}
