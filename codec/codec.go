// Package codec encodes and decodes values stored as bytes.
package codec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"google.golang.org/protobuf/proto"
	"gopkg.in/yaml.v3"
)

// ErrNotProtoMessage is returned by Proto when the value is not a proto.Message.
var ErrNotProtoMessage = errors.New("value is not a proto.Message")

// Codec encodes values to bytes and back. Decode(Encode(v)) must yield a value
// equal to v.
type Codec interface {
	Name() string
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// Gob is the default Codec, able to encode any Go value gob supports.
type Gob struct{}

func (Gob) Name() string { return "gob" }

func (Gob) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob: %w", err)
	}
	return buf.Bytes(), nil
}

func (Gob) Decode(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("gob: %w", err)
	}
	return nil
}

type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

type YAML struct{}

func (YAML) Name() string { return "yaml" }

func (YAML) Encode(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

func (YAML) Decode(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

// Proto encodes proto.Message values with the protobuf binary wire format.
type Proto struct{}

func (Proto) Name() string { return "proto" }

func (Proto) Encode(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotProtoMessage, v)
	}
	return proto.Marshal(msg)
}

func (Proto) Decode(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotProtoMessage, v)
	}
	return proto.Unmarshal(data, msg)
}

// Default is the Codec used when none is given.
var Default Codec = Gob{}

var codecs = map[string]Codec{}

// Register makes a Codec available by name to Get.
func Register(c Codec) {
	codecs[c.Name()] = c
}

// Get returns the registered Codec with name. An empty name returns Default.
func Get(name string) (Codec, error) {
	if name == "" {
		return Default, nil
	}
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("unknown codec %#v, valid options: %v", name, Names())
	}
	return c, nil
}

// Names returns the sorted names of all registered codecs.
func Names() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(Gob{})
	Register(JSON{})
	Register(YAML{})
	Register(Proto{})
}
