package domain

import (
	"encoding/json"
	"fmt"
)

// CompilationConfig is the compile-specific half of a Queue Message.
type CompilationConfig struct {
	Version       string   `json:"version"`
	UserLibraries []string `json:"user_libraries,omitempty"`
	TargetPath    string   `json:"target_path,omitempty"`
}

// VerificationConfig is the verify-specific half of a Queue Message.
type VerificationConfig struct {
	ZksolcVersion   string   `json:"zksolc_version"`
	SolcVersion     string   `json:"solc_version,omitempty"`
	Network         string   `json:"network"`
	ContractAddress string   `json:"contract_address"`
	Inputs          []string `json:"inputs"`
	TargetContract  string   `json:"target_contract,omitempty"`
}

// MessageKind discriminates the Queue Message sum.
type MessageKind string

const (
	MessageCompile MessageKind = "Compile"
	MessageVerify  MessageKind = "Verify"
)

// QueueMessage is the JSON envelope read off the Queue: a job-kind tag, the
// flattened Job Identifier, and a job-specific config under the shared
// "config" key. Exactly one of Compile/Verify is populated, selected by
// Type — the wire format never nests both under distinct keys, so
// unmarshaling switches on Type before decoding the config payload.
type QueueMessage struct {
	Type MessageKind
	ID   string

	Compile *CompilationConfig
	Verify  *VerificationConfig
}

type queueMessageWire struct {
	Type MessageKind     `json:"type"`
	ID   string          `json:"id"`
	Config json.RawMessage `json:"config"`
}

// MarshalJSON renders the envelope with a single "config" key shaped by Type.
func (m QueueMessage) MarshalJSON() ([]byte, error) {
	wire := queueMessageWire{Type: m.Type, ID: m.ID}
	var (
		cfg interface{}
		err error
	)
	switch m.Type {
	case MessageCompile:
		cfg = m.Compile
	case MessageVerify:
		cfg = m.Verify
	default:
		return nil, fmt.Errorf("domain: marshal queue message: unknown type %q", m.Type)
	}
	wire.Config, err = json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("domain: marshal queue message config: %w", err)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the envelope, routing "config" to the type named by
// "type".
func (m *QueueMessage) UnmarshalJSON(data []byte) error {
	var wire queueMessageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("domain: unmarshal queue message: %w", err)
	}
	m.Type = wire.Type
	m.ID = wire.ID
	switch wire.Type {
	case MessageCompile:
		var cfg CompilationConfig
		if err := json.Unmarshal(wire.Config, &cfg); err != nil {
			return fmt.Errorf("domain: unmarshal compile config: %w", err)
		}
		m.Compile = &cfg
	case MessageVerify:
		var cfg VerificationConfig
		if err := json.Unmarshal(wire.Config, &cfg); err != nil {
			return fmt.Errorf("domain: unmarshal verify config: %w", err)
		}
		m.Verify = &cfg
	default:
		return fmt.Errorf("domain: unmarshal queue message: unknown type %q", wire.Type)
	}
	return nil
}

// CompileRequest is the fully-typed form of a Compile Queue Message,
// produced once the envelope has been validated.
type CompileRequest struct {
	ID     JobID
	Config CompilationConfig
}

// VerifyRequest is the fully-typed form of a Verify Queue Message.
type VerifyRequest struct {
	ID     JobID
	Config VerificationConfig
}

// AsCompileRequest converts a validated Compile envelope into its typed form.
func (m QueueMessage) AsCompileRequest() (CompileRequest, error) {
	id, err := ParseJobID(m.ID)
	if err != nil {
		return CompileRequest{}, fmt.Errorf("domain: parse job id %q: %w", m.ID, err)
	}
	if m.Compile == nil {
		return CompileRequest{}, fmt.Errorf("domain: queue message %s has no compile config", m.ID)
	}
	return CompileRequest{ID: id, Config: *m.Compile}, nil
}

// AsVerifyRequest converts a validated Verify envelope into its typed form.
func (m QueueMessage) AsVerifyRequest() (VerifyRequest, error) {
	id, err := ParseJobID(m.ID)
	if err != nil {
		return VerifyRequest{}, fmt.Errorf("domain: parse job id %q: %w", m.ID, err)
	}
	if m.Verify == nil {
		return VerifyRequest{}, fmt.Errorf("domain: queue message %s has no verify config", m.ID)
	}
	return VerifyRequest{ID: id, Config: *m.Verify}, nil
}
