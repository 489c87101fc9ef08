package authz

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// AreaAlias maps one controller to the permission area it shares
type AreaAlias struct {
	Controller string
	Area       string
}

// DefaultAreaAliases is the built-in controller to area table.
// Contact and Complaint are deliberately absent; set them in the area file.
var DefaultAreaAliases = []AreaAlias{
	{Controller: "MaintenanceSchedule", Area: "Maintenance"},
	{Controller: "MaintenanceTask", Area: "Maintenance"},
	{Controller: "MaintenanceRequest", Area: "Maintenance"},
	{Controller: "MaintenanceHistory", Area: "Maintenance"},
	{Controller: "MaintenanceType", Area: "Maintenance"},
	{Controller: "Role", Area: "Administration"},
	{Controller: "Directory", Area: "Administration"},
	{Controller: "Audit", Area: "Administration"},
}

// AreaMap resolves controller names to permission areas.
// Controllers without an alias are their own area. Matching ignores case.
type AreaMap struct {
	aliases map[string]string
}

// NewAreaMap validates aliases and builds the table. Empty names, a
// controller listed twice, a controller aliased to itself and an area that
// is itself aliased are all errors.
func NewAreaMap(aliases []AreaAlias) (*AreaMap, error) {
	m := &AreaMap{aliases: make(map[string]string, len(aliases))}
	var errs []error

	for _, a := range aliases {
		controller := strings.TrimSpace(a.Controller)
		area := strings.TrimSpace(a.Area)
		if controller == "" || area == "" {
			errs = append(errs, fmt.Errorf("alias %q -> %q: controller and area are required", a.Controller, a.Area))
			continue
		}
		key := strings.ToLower(controller)
		if existing, ok := m.aliases[key]; ok {
			errs = append(errs, fmt.Errorf("controller %s is mapped twice (%s, %s)", controller, existing, area))
			continue
		}
		if strings.EqualFold(controller, area) {
			errs = append(errs, fmt.Errorf("controller %s is aliased to itself", controller))
			continue
		}
		m.aliases[key] = area
	}

	for controller, area := range m.aliases {
		if _, chained := m.aliases[strings.ToLower(area)]; chained {
			errs = append(errs, fmt.Errorf("controller %s maps to area %s which is itself aliased", controller, area))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid area map: %w", errors.Join(errs...))
	}
	return m, nil
}

// DefaultAreaMap returns the map built from DefaultAreaAliases
func DefaultAreaMap() *AreaMap {
	m, err := NewAreaMap(DefaultAreaAliases)
	if err != nil {
		panic(err)
	}
	return m
}

// AreaFor returns the permission area for a controller
func (m *AreaMap) AreaFor(controller string) string {
	if m == nil {
		return controller
	}
	if area, ok := m.aliases[strings.ToLower(controller)]; ok {
		return area
	}
	return controller
}

// Len returns the number of aliases
func (m *AreaMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.aliases)
}

// areaFile is the YAML layout of an area map file:
//
//	areas:
//	  Maintenance: [MaintenanceSchedule, MaintenanceTask]
//	  QualityAssurance: [Contact, Complaint]
type areaFile struct {
	Areas map[string][]string `yaml:"areas"`
}

// ParseAreaMap builds an AreaMap from YAML. The file replaces the defaults.
func ParseAreaMap(data []byte) (*AreaMap, error) {
	var f areaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse area map: %w", err)
	}

	areas := make([]string, 0, len(f.Areas))
	for area := range f.Areas {
		areas = append(areas, area)
	}
	sort.Strings(areas)

	var aliases []AreaAlias
	for _, area := range areas {
		for _, controller := range f.Areas[area] {
			aliases = append(aliases, AreaAlias{Controller: controller, Area: area})
		}
	}
	return NewAreaMap(aliases)
}

// LoadAreaMap reads and parses an area map file
func LoadAreaMap(path string) (*AreaMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read area map: %w", err)
	}
	return ParseAreaMap(data)
}
