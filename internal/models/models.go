package models

import (
	"fmt"
	"strings"
)

// FieldKind mirrors the UNIMARC authority field a name was taken from.
type FieldKind int

const (
	FieldMain    FieldKind = 200
	FieldVariant FieldKind = 400
	FieldLinked  FieldKind = 700
)

// ParseFieldKind maps a UNIMARC tag to its field kind.
func ParseFieldKind(tag string) (FieldKind, error) {
	switch tag {
	case "200":
		return FieldMain, nil
	case "400":
		return FieldVariant, nil
	case "700":
		return FieldLinked, nil
	default:
		return 0, fmt.Errorf("unsupported name field: %s", tag)
	}
}

func (k FieldKind) String() string {
	switch k {
	case FieldMain:
		return "main"
	case FieldVariant:
		return "variant"
	case FieldLinked:
		return "linked"
	default:
		return fmt.Sprintf("field(%d)", int(k))
	}
}

// NameRecord is one normalized name occurrence of an authority entity.
type NameRecord struct {
	ID           int64     `json:"id"`
	EntityID     int64     `json:"entity_id"`
	ServerID     int       `json:"server_id"`
	SourceAuthID string    `json:"source_authid"`
	FieldKind    FieldKind `json:"field"`
	EntryName    string    `json:"entryname"`
	GivenName    string    `json:"given_name"`
	Initials     string    `json:"initials"`
	Dates        string    `json:"dates"`
	Roman        string    `json:"roman"`
	Identifier   string    `json:"isni"`
	Lang         string    `json:"lang"`
	FullName     string    `json:"full_name"`
}

// RawAuthority is an authority record as harvested from a server.
type RawAuthority struct {
	EntityID     int64  `json:"auth_id" parquet:"auth_id"`
	ServerID     int    `json:"server_id" parquet:"server_id"`
	SourceAuthID string `json:"source_authid" parquet:"source_authid"`
	AuthType     string `json:"authtype" parquet:"authtype"`
	UsedCount    int    `json:"used_count" parquet:"used_count"`
	XMLRecord    string `json:"xmlrecord" parquet:"xmlrecord"`
}

// Server is a library server hosting authority records.
type Server struct {
	ID       int    `json:"server_id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// GivenNameRepeatsEntry marks servers whose $g subfield starts with the $a value.
	GivenNameRepeatsEntry bool `json:"given_name_repeats_entry" yaml:"given_name_repeats_entry"`
}

// ClusterAssignment is one row of the cluster table.
type ClusterAssignment struct {
	EntityID  int64 `json:"auth_id" parquet:"auth_id"`
	ClusterID int64 `json:"cluster_id" parquet:"cluster_id"`
}

// ProcGivenName is the given name, or the initials when no given name is known.
func (r NameRecord) ProcGivenName() string {
	if strings.TrimSpace(r.GivenName) != "" {
		return r.GivenName
	}
	return r.Initials
}
