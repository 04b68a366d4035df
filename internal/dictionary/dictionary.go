// Package dictionary loads the protocol dictionary describing which
// FIX.4.0-4.4 variant a session speaks: its BeginString, the admin fields it
// recognizes, and (optionally) an application message catalog. The wire
// codec itself is dictionary-agnostic past the header/trailer; the
// dictionary exists for validation and for driving defaults, the way the
// teacher's config.Config is loaded once and handed to every component that
// needs it.
package dictionary

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FieldDef describes one named field in the dictionary.
type FieldDef struct {
	Tag      int    `yaml:"tag"`
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // "int", "string", "char", "utctimestamp", "bool"
	Required bool   `yaml:"required"`
}

// MessageDef describes one named message type's field list. MsgCat follows
// spec.md §6's "msgtype, msgcat ∈ {admin, app}" shape; an empty MsgCat is
// treated as "app" everywhere it's read.
type MessageDef struct {
	MsgType string   `yaml:"msgType"`
	Name    string   `yaml:"name"`
	MsgCat  string   `yaml:"msgcat"`
	Fields  []string `yaml:"fields"` // field names referenced from Dictionary.Fields
}

// Dictionary is the parsed protocol definition for one BeginString.
type Dictionary struct {
	BeginString string                 `yaml:"beginString"`
	Fields      map[string]FieldDef    `yaml:"fields"`
	Header      []string               `yaml:"header"`
	Trailer     []string               `yaml:"trailer"`
	Messages    map[string]MessageDef  `yaml:"messages"`
}

// Load parses a dictionary YAML file at path, per spec.md §6's shape
// (beginString/fields/header/trailer/messages), the same
// read-file-then-yaml.Unmarshal pattern the teacher's config loader uses.
func Load(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dictionary: read %s: %w", path, err)
	}
	var d Dictionary
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("dictionary: parse %s: %w", path, err)
	}
	if d.BeginString == "" {
		return nil, fmt.Errorf("dictionary: %s: missing beginString", path)
	}
	return &d, nil
}

// FieldByTag returns the FieldDef whose Tag matches tag, if any.
func (d *Dictionary) FieldByTag(tag int) (FieldDef, bool) {
	for _, f := range d.Fields {
		if f.Tag == tag {
			return f, true
		}
	}
	return FieldDef{}, false
}

// HasMessage reports whether msgType is defined in this dictionary.
func (d *Dictionary) HasMessage(msgType string) bool {
	_, ok := d.Messages[msgType]
	return ok
}

// hasApplicationCatalog reports whether d declares at least one non-admin
// message type. Dictionary.Default declares none — it covers only the
// session-admin messages — so a dictionary built from it must not reject
// application MsgTypes it was never told about.
func (d *Dictionary) hasApplicationCatalog() bool {
	for _, m := range d.Messages {
		if m.MsgCat != "admin" {
			return true
		}
	}
	return false
}

// Accepts reports whether msgType is a MsgType this dictionary allows on the
// wire. A nil Dictionary accepts everything (no enforcement configured). A
// dictionary that declares no application catalog — Dictionary.Default,
// notably — also accepts everything outside its own admin set, since it was
// never given an application message list to check against. Otherwise
// msgType must be declared.
func (d *Dictionary) Accepts(msgType string) bool {
	if d == nil {
		return true
	}
	if d.HasMessage(msgType) {
		return true
	}
	return !d.hasApplicationCatalog()
}
