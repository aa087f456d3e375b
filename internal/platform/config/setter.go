package config

import (
	"fmt"
	"strconv"
	"time"

	pstrings "labelcheck/pkg/platform/strings"
)

// setter applies values from one source while leaving fields owned by
// explicitly set flags alone.
type setter struct {
	changed map[string]bool
}

func newSetter(changed map[string]bool) *setter {
	if changed == nil {
		changed = map[string]bool{}
	}
	return &setter{changed: changed}
}

func (s *setter) skip(flag string) bool {
	return s.changed[flag]
}

func (s *setter) setString(flag, value string, dst *string) {
	if value == "" || s.skip(flag) {
		return
	}
	*dst = value
}

func (s *setter) setList(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.skip(flag) {
		return
	}
	*dst = pstrings.DedupeAndTrim(value)
}

func (s *setter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.skip(flag) {
		return
	}
	*dst = value
}

func (s *setter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.skip(flag) {
		return
	}
	*dst = value
}

func (s *setter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.skip(flag) {
		return
	}
	*dst = *value
}

func (s *setter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.skip(flag) {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *setter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.skip(flag) {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	s.setInt(flag, n, dst)
	return nil
}

func (s *setter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.skip(flag) {
		return nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	s.setInt64(flag, n, dst)
	return nil
}

// setBoolFromString treats "true" and "1" as true.
func (s *setter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.skip(flag) {
		return
	}
	*dst = value == "true" || value == "1"
}
