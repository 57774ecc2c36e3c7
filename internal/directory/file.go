package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/imrishuroy/insurance-relay/internal/patient"
)

// FileDirectory reads a flat insurance database from disk. The file is read
// on every lookup so edits are visible without a restart; wrap it in Cached
// to trade that for fewer reads.
type FileDirectory struct {
	path string
}

// NewFileDirectory returns a directory backed by path (.json, .xml, .yaml or .yml).
func NewFileDirectory(path string) *FileDirectory {
	return &FileDirectory{path: path}
}

// Lookup returns the first entry whose id matches patientID.
func (d *FileDirectory) Lookup(ctx context.Context, patientID string) (patient.PolicyInfo, bool, error) {
	if err := ctx.Err(); err != nil {
		return patient.PolicyInfo{}, false, err
	}
	entries, err := LoadFile(d.path)
	if err != nil {
		return patient.PolicyInfo{}, false, err
	}
	for _, e := range entries {
		if e.PatientID == patientID {
			return e.PolicyInfo, true, nil
		}
	}
	return patient.PolicyInfo{}, false, nil
}

// LoadFile parses every entry of a directory file, skipping rows without an id.
func LoadFile(path string) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var rows []fileEntry
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		rows, err = decodeJSON(b)
	case ".xml":
		rows, err = decodeXML(b)
	case ".yaml", ".yml":
		rows, err = decodeYAML(b)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse directory %s: %w", filepath.Base(path), err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		id := r.id()
		if id == "" {
			continue
		}
		entries = append(entries, Entry{
			PatientID:  id,
			PolicyInfo: patient.PolicyInfo{PolicyNumber: r.PolicyNumber, Provider: r.Provider},
		})
	}
	return entries, nil
}

type fileEntry struct {
	ID           string `json:"id" yaml:"id"`
	PatientID    string `json:"patientId" yaml:"patientId"`
	PolicyNumber string `json:"policyNumber" yaml:"policyNumber"`
	Provider     string `json:"provider" yaml:"provider"`
}

func (e fileEntry) id() string {
	if e.ID != "" {
		return e.ID
	}
	return e.PatientID
}

type fileDatabase struct {
	Patients []fileEntry `json:"patients" yaml:"patients"`
}

func decodeJSON(b []byte) ([]fileEntry, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var rows []fileEntry
		err := json.Unmarshal(b, &rows)
		return rows, err
	}
	var db fileDatabase
	err := json.Unmarshal(b, &db)
	return db.Patients, err
}

func decodeYAML(b []byte) ([]fileEntry, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return nil, err
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		var rows []fileEntry
		err := node.Decode(&rows)
		return rows, err
	}
	var db fileDatabase
	err := node.Decode(&db)
	return db.Patients, err
}

type xmlDatabase struct {
	Patients []xmlEntry `xml:"patient"`
}

// <patient id="p1"> and <patient><id>p1</id> are both accepted.
type xmlEntry struct {
	IDAttr       string `xml:"id,attr"`
	ID           string `xml:"id"`
	PatientID    string `xml:"patientId"`
	PolicyNumber string `xml:"policyNumber"`
	Provider     string `xml:"provider"`
}

func decodeXML(b []byte) ([]fileEntry, error) {
	var db xmlDatabase
	if err := xml.Unmarshal(b, &db); err != nil {
		return nil, err
	}
	rows := make([]fileEntry, 0, len(db.Patients))
	for _, p := range db.Patients {
		id := strings.TrimSpace(p.IDAttr)
		if id == "" {
			id = strings.TrimSpace(p.ID)
		}
		rows = append(rows, fileEntry{
			ID:           id,
			PatientID:    strings.TrimSpace(p.PatientID),
			PolicyNumber: strings.TrimSpace(p.PolicyNumber),
			Provider:     strings.TrimSpace(p.Provider),
		})
	}
	return rows, nil
}
