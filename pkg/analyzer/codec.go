package analyzer

import (
	"encoding/json"
	"fmt"
)

// envelope is the wire form of a Task: the variant tag plus its fields.
type envelope struct {
	Kind      TaskKind `json:"kind"`
	Source    string   `json:"source,omitempty"`
	Output    string   `json:"output,omitempty"`
	FilePath  string   `json:"filePath,omitempty"`
	OutputDir string   `json:"outputDir,omitempty"`
}

// EncodeTask serializes a task into a single JSON line payload (without the trailing newline).
func EncodeTask(t Task) ([]byte, error) {
	var env envelope
	switch v := t.(type) {
	case EnumerateDirectory:
		env = envelope{Kind: KindEnumerateDirectory, Source: v.SourcePath, Output: v.OutputPath}
	case ParseFile:
		env = envelope{Kind: KindParseFile, FilePath: v.FilePath, OutputDir: v.OutputDir}
	case Shutdown:
		env = envelope{Kind: KindShutdown}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownTask, t)
	}
	return json.Marshal(env)
}

// DecodeTask parses a payload produced by EncodeTask.
func DecodeTask(data []byte) (Task, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed task: %w", ErrTransport, err)
	}
	switch env.Kind {
	case KindEnumerateDirectory:
		return EnumerateDirectory{SourcePath: env.Source, OutputPath: env.Output}, nil
	case KindParseFile:
		return ParseFile{FilePath: env.FilePath, OutputDir: env.OutputDir}, nil
	case KindShutdown:
		return Shutdown{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, env.Kind)
	}
}

// EncodeCompletion serializes a completion signal for the return channel.
func EncodeCompletion(c Completion) ([]byte, error) {
	return json.Marshal(c)
}

// DecodeCompletion parses a payload produced by EncodeCompletion.
func DecodeCompletion(data []byte) (Completion, error) {
	var c Completion
	if err := json.Unmarshal(data, &c); err != nil {
		return Completion{}, fmt.Errorf("%w: malformed completion: %w", ErrTransport, err)
	}
	return c, nil
}
