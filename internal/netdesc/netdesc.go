// Package netdesc loads a YAML network description (SPEC_FULL.md §4's
// network.yaml) into a builder.NetworkBuilder, the same role config.go plays
// for the gateway's flags: a thin, validating translation from an on-disk
// document into the types the rest of the program consumes.
package netdesc

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ampio/canresolve/internal/builder"
	"github.com/ampio/canresolve/internal/model"
)

// Document is the top-level YAML shape.
type Document struct {
	Buses    []busDoc      `yaml:"buses"`
	Nodes    []string      `yaml:"nodes"`
	Types    []typeDoc     `yaml:"types"`
	Messages []messageDoc  `yaml:"messages"`
}

type busDoc struct {
	Name     string `yaml:"name"`
	Baudrate uint64 `yaml:"baudrate"`
}

type typeDoc struct {
	Name   string       `yaml:"name"`
	Kind   string       `yaml:"kind"` // uint|int|decimal|struct|enum|array
	Bits   uint8        `yaml:"bits"`
	Offset float64      `yaml:"offset"`
	Scale  float64      `yaml:"scale"`
	Len    uint32       `yaml:"len"`
	Elem   string       `yaml:"elem"` // array element type name
	Fields []fieldDoc   `yaml:"fields"`
	Values []enumVal    `yaml:"values"`
}

type fieldDoc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type enumVal struct {
	Name  string `yaml:"name"`
	Value uint64 `yaml:"value"`
}

type idDoc struct {
	Std      *uint32 `yaml:"std"`
	Ext      *uint32 `yaml:"ext"`
	AnyStd   string  `yaml:"any_std"`   // priority name
	AnyExt   string  `yaml:"any_ext"`   // priority name
	AnyAny   string  `yaml:"any_any"`   // priority name
}

type signalDoc struct {
	Name   string `yaml:"name"`
	Bits   uint32 `yaml:"bits"`
	Offset uint32 `yaml:"offset"`
}

type payloadDoc struct {
	Signals []signalDoc `yaml:"signals"`
	Fields  []fieldDoc  `yaml:"fields"`
}

type usageDoc struct {
	Kind     string `yaml:"kind"` // stream|command_req|command_resp|get_req|get_resp|set_req|set_resp|heartbeat|external
	Interval string `yaml:"interval"`
}

type messageDoc struct {
	Name         string     `yaml:"name"`
	ID           idDoc      `yaml:"id"`
	Receivers    []string   `yaml:"receivers"`
	Transmitters []string   `yaml:"transmitters"`
	Bus          string     `yaml:"bus"`
	Payload      payloadDoc `yaml:"payload"`
	Usage        usageDoc   `yaml:"usage"`
}

// Load reads and parses path, returning a populated NetworkBuilder.
func Load(path string) (*builder.NetworkBuilder, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("netdesc: read %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("netdesc: parse %s: %w", path, err)
	}
	return FromDocument(doc)
}

// FromDocument builds a NetworkBuilder from an already-parsed Document,
// split out from Load so tests can construct documents in-process.
func FromDocument(doc Document) (*builder.NetworkBuilder, error) {
	b := builder.New()

	busHandle := make(map[string]builder.BusHandle, len(doc.Buses))
	for _, bd := range doc.Buses {
		if bd.Name == "" {
			return nil, fmt.Errorf("netdesc: bus with empty name")
		}
		busHandle[bd.Name] = b.AddBus(bd.Name, bd.Baudrate)
	}

	nodeHandle := make(map[string]builder.NodeHandle, len(doc.Nodes))
	for _, n := range doc.Nodes {
		nodeHandle[n] = b.AddNode(n)
	}
	// Messages may reference nodes never listed under top-level `nodes`;
	// register on first sight so the document doesn't need both.
	node := func(name string) builder.NodeHandle {
		if h, ok := nodeHandle[name]; ok {
			return h
		}
		h := b.AddNode(name)
		nodeHandle[name] = h
		return h
	}

	types := make(map[string]model.Type, len(doc.Types))
	for _, td := range doc.Types {
		t, err := buildType(td, types)
		if err != nil {
			return nil, fmt.Errorf("netdesc: type %s: %w", td.Name, err)
		}
		types[td.Name] = t
		b.AddType(td.Name, t)
	}

	for _, md := range doc.Messages {
		tmpl, err := buildIDTemplate(md.ID)
		if err != nil {
			return nil, fmt.Errorf("netdesc: message %s: %w", md.Name, err)
		}
		usage, err := buildUsage(md.Usage)
		if err != nil {
			return nil, fmt.Errorf("netdesc: message %s: %w", md.Name, err)
		}
		payload, err := buildPayload(md.Payload)
		if err != nil {
			return nil, fmt.Errorf("netdesc: message %s: %w", md.Name, err)
		}
		var busHint *builder.BusHandle
		if md.Bus != "" {
			h, ok := busHandle[md.Bus]
			if !ok {
				return nil, fmt.Errorf("netdesc: message %s: unknown bus %q", md.Name, md.Bus)
			}
			busHint = &h
		}
		recv := make([]builder.NodeHandle, 0, len(md.Receivers))
		for _, r := range md.Receivers {
			recv = append(recv, node(r))
		}
		tx := make([]builder.NodeHandle, 0, len(md.Transmitters))
		for _, t := range md.Transmitters {
			tx = append(tx, node(t))
		}
		if _, err := b.AddMessage(builder.MessageSpec{
			Name:         md.Name,
			IDTemplate:   tmpl,
			Receivers:    recv,
			Transmitters: tx,
			Payload:      payload,
			Usage:        usage,
			BusHint:      busHint,
		}); err != nil {
			return nil, fmt.Errorf("netdesc: %w", err)
		}
	}
	return b, nil
}

func buildType(td typeDoc, known map[string]model.Type) (model.Type, error) {
	switch td.Kind {
	case "uint":
		return model.UnsignedInt{Bits: td.Bits}, nil
	case "int":
		return model.SignedInt{Bits: td.Bits}, nil
	case "decimal":
		return model.Decimal{Bits: td.Bits, Offset: td.Offset, Scale: td.Scale}, nil
	case "enum":
		entries := make([]model.EnumEntry, 0, len(td.Values))
		for _, v := range td.Values {
			entries = append(entries, model.EnumEntry{Name: v.Name, Value: v.Value})
		}
		return model.Enum{TypeName: td.Name, Bits: td.Bits, Entries: entries}, nil
	case "struct":
		attribs := make([]model.StructAttrib, 0, len(td.Fields))
		for _, f := range td.Fields {
			ft, ok := known[f.Type]
			if !ok {
				return nil, fmt.Errorf("field %s references unknown type %q (types must be declared before use)", f.Name, f.Type)
			}
			attribs = append(attribs, model.StructAttrib{Name: f.Name, Type: ft})
		}
		return model.Struct{TypeName: td.Name, Attribs: attribs}, nil
	case "array":
		elem, ok := known[td.Elem]
		if !ok {
			return nil, fmt.Errorf("array element type %q must be declared before use", td.Elem)
		}
		return model.Array{Len: td.Len, Element: elem}, nil
	default:
		return nil, fmt.Errorf("unknown type kind %q", td.Kind)
	}
}

func buildIDTemplate(id idDoc) (model.IdTemplate, error) {
	switch {
	case id.Std != nil:
		return model.StdID{Value: *id.Std}, nil
	case id.Ext != nil:
		return model.ExtID{Value: *id.Ext}, nil
	case id.AnyStd != "":
		p, err := parsePriority(id.AnyStd)
		if err != nil {
			return nil, err
		}
		return model.AnyStd{Priority: p}, nil
	case id.AnyExt != "":
		p, err := parsePriority(id.AnyExt)
		if err != nil {
			return nil, err
		}
		return model.AnyExt{Priority: p}, nil
	case id.AnyAny != "":
		p, err := parsePriority(id.AnyAny)
		if err != nil {
			return nil, err
		}
		return model.AnyAny{Priority: p}, nil
	default:
		return nil, fmt.Errorf("id: exactly one of std/ext/any_std/any_ext/any_any is required")
	}
}

func parsePriority(s string) (model.Priority, error) {
	switch s {
	case "realtime":
		return model.Realtime, nil
	case "high":
		return model.High, nil
	case "normal":
		return model.Normal, nil
	case "low":
		return model.Low, nil
	case "super_low":
		return model.SuperLow, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

func buildUsage(u usageDoc) (model.Usage, error) {
	var interval time.Duration
	if u.Interval != "" {
		d, err := time.ParseDuration(u.Interval)
		if err != nil {
			return nil, fmt.Errorf("usage interval: %w", err)
		}
		interval = d
	}
	switch u.Kind {
	case "", "external":
		return model.External{Interval: interval}, nil
	case "stream":
		return model.Stream{Interval: interval}, nil
	case "command_req":
		return model.CommandReq{ExpectedInterval: interval}, nil
	case "command_resp":
		return model.CommandResp{ExpectedInterval: interval}, nil
	case "get_req":
		return model.GetReq{}, nil
	case "get_resp":
		return model.GetResp{}, nil
	case "set_req":
		return model.SetReq{}, nil
	case "set_resp":
		return model.SetResp{}, nil
	case "heartbeat":
		return model.Heartbeat{Interval: interval}, nil
	default:
		return nil, fmt.Errorf("unknown usage kind %q", u.Kind)
	}
}

func buildPayload(p payloadDoc) (model.Payload, error) {
	switch {
	case len(p.Signals) > 0:
		sig := make([]model.Signal, 0, len(p.Signals))
		for _, s := range p.Signals {
			sig = append(sig, model.Signal{Name: s.Name, WidthBits: s.Bits, ByteOffset: s.Offset})
		}
		return model.SignalsPayload{Signals: sig}, nil
	case len(p.Fields) > 0:
		fields := make([]model.TypedField, 0, len(p.Fields))
		for _, f := range p.Fields {
			fields = append(fields, model.TypedField{Type: model.TypeRef{Name: f.Type}, Label: f.Name})
		}
		return model.TypesPayload{Fields: fields}, nil
	default:
		return model.EmptyPayload{}, nil
	}
}
