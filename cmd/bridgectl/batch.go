package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// manifest lists RPC calls executed in order, e.g. a scripted migration of
// several contracts.
type manifest struct {
	ContinueOnError bool   `yaml:"continue_on_error"`
	Steps           []step `yaml:"steps"`
}

type step struct {
	Name   string                 `yaml:"name"`
	Method string                 `yaml:"method"`
	Params map[string]interface{} `yaml:"params"`
	// Resume repeats a scan step from its next key until the scan reports
	// completion.
	Resume bool `yaml:"resume"`
}

const (
	methodFullScan  = "bridge_migrateFullScan"
	methodScanOwned = "bridge_scanOwned"
)

type stepResult struct {
	Name   string          `json:"name"`
	Method string          `json:"method"`
	Calls  int             `json:"calls"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

const maxResumeCalls = 10_000

func loadManifest(path string) (*manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	var m manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if len(m.Steps) == 0 {
		return nil, errors.New("manifest has no steps")
	}
	for i := range m.Steps {
		s := &m.Steps[i]
		s.Method = strings.TrimSpace(s.Method)
		if s.Method == "" {
			return nil, fmt.Errorf("step %d: method required", i+1)
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("%d-%s", i+1, s.Method)
		}
		if s.Resume && s.Method != methodFullScan && s.Method != methodScanOwned {
			return nil, fmt.Errorf("step %s: resume only applies to scans", s.Name)
		}
		if err := validateSlots(s); err != nil {
			return nil, fmt.Errorf("step %s: %w", s.Name, err)
		}
	}
	return &m, nil
}

// validateSlots checks the slot-addressing params of scan steps before any
// call is made. Slot indexes must be non-negative integers.
func validateSlots(s *step) error {
	for _, name := range []string{"baseSlot", "ownerSlot"} {
		v, ok := s.Params[name]
		if !ok {
			continue
		}
		if s.Method != methodFullScan && s.Method != methodScanOwned {
			return fmt.Errorf("%s only applies to scans", name)
		}
		if n, isInt := v.(int); !isInt || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer", name)
		}
	}
	if s.Method != methodScanOwned {
		return nil
	}
	_, hasKey := s.Params["ownerKey"]
	_, hasSlot := s.Params["ownerSlot"]
	if hasKey == hasSlot {
		return errors.New("scan owned needs exactly one of ownerKey or ownerSlot")
	}
	return nil
}

type rpcCaller interface {
	call(ctx context.Context, method string, params interface{}, out interface{}) error
}

func runManifest(ctx context.Context, c rpcCaller, m *manifest, out io.Writer) error {
	enc := json.NewEncoder(out)
	var failed int
	for _, s := range m.Steps {
		res := executeStep(ctx, c, s)
		if err := enc.Encode(res); err != nil {
			return err
		}
		if res.Error != "" {
			failed++
			if !m.ContinueOnError {
				return fmt.Errorf("step %s failed: %s", s.Name, res.Error)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d steps failed", failed, len(m.Steps))
	}
	return nil
}

func executeStep(ctx context.Context, c rpcCaller, s step) stepResult {
	res := stepResult{Name: s.Name, Method: s.Method}
	params := make(map[string]interface{}, len(s.Params))
	for k, v := range s.Params {
		params[k] = v
	}
	for {
		var raw json.RawMessage
		var payload interface{}
		if len(params) > 0 {
			payload = params
		}
		res.Calls++
		if err := c.call(ctx, s.Method, payload, &raw); err != nil {
			res.Error = err.Error()
			return res
		}
		res.Result = raw
		if !s.Resume {
			return res
		}
		var scan struct {
			Complete bool   `json:"complete"`
			Next     string `json:"next"`
		}
		if err := json.Unmarshal(raw, &scan); err != nil {
			res.Error = fmt.Sprintf("decode scan result: %v", err)
			return res
		}
		if scan.Complete {
			return res
		}
		if res.Calls >= maxResumeCalls {
			res.Error = "scan did not complete"
			return res
		}
		params["start"] = scan.Next
	}
}
