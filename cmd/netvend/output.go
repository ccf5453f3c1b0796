package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/Syriven/netvend/internal/protocol"
	"github.com/Syriven/netvend/internal/protocol/session"
)

type handshakeView struct {
	Address         string `json:"address" yaml:"address"`
	IsNewAgent      bool   `json:"is_new_agent" yaml:"is_new_agent"`
	DefaultPocketID uint32 `json:"default_pocket_id,omitempty" yaml:"default_pocket_id,omitempty"`
}

type keyView struct {
	Address string `json:"address" yaml:"address"`
	KeyFile string `json:"key_file" yaml:"key_file"`
}

type resultView struct {
	Index          int    `json:"index" yaml:"index"`
	Command        string `json:"command" yaml:"command"`
	Cost           uint64 `json:"cost" yaml:"cost"`
	Error          string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind      string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	PocketID       uint32 `json:"pocket_id,omitempty" yaml:"pocket_id,omitempty"`
	FileID         uint32 `json:"file_id,omitempty" yaml:"file_id,omitempty"`
	DepositAddress string `json:"deposit_address,omitempty" yaml:"deposit_address,omitempty"`
	Data           string `json:"data,omitempty" yaml:"data,omitempty"`
	DataEncoding   string `json:"data_encoding,omitempty" yaml:"data_encoding,omitempty"`
}

type batchView struct {
	Completion string       `json:"completion" yaml:"completion"`
	Executed   int          `json:"executed" yaml:"executed"`
	Commands   int          `json:"commands" yaml:"commands"`
	TotalCost  uint64       `json:"total_cost" yaml:"total_cost"`
	Results    []resultView `json:"results" yaml:"results"`
}

func newBatchView(b *protocol.Batch, out session.BatchOutcome) batchView {
	view := batchView{
		Completion: out.Completion.String(),
		Commands:   b.Len(),
		Results:    []resultView{},
	}
	if out.Results == nil {
		return view
	}
	view.Executed = out.Results.Len()
	view.TotalCost = out.Results.TotalCost()
	for i, r := range out.Results.Results() {
		rv := resultView{Index: i, Command: b.Commands[i].Tag().String(), Cost: r.Cost}
		if r.IsError() {
			rv.Error = r.Err.Error()
			rv.ErrorKind = r.Err.Kind().String()
			view.Results = append(view.Results, rv)
			continue
		}
		switch o := r.Outcome.(type) {
		case protocol.CreatePocketResult:
			rv.PocketID = o.PocketID
		case protocol.CreateFileResult:
			rv.FileID = o.FileID
		case protocol.RequestPocketDepositAddressResult:
			rv.DepositAddress = o.DepositAddress
		case protocol.ReadFileByIDResult:
			rv.Data, rv.DataEncoding = encodeData(o.Data)
		}
		view.Results = append(view.Results, rv)
	}
	return view
}

func encodeData(data []byte) (string, string) {
	if utf8.Valid(data) {
		return string(data), "utf8"
	}
	return base64.StdEncoding.EncodeToString(data), "base64"
}

func render(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return renderText(w, v)
	}
}

func renderText(w io.Writer, v any) error {
	var err error
	switch view := v.(type) {
	case keyView:
		_, err = fmt.Fprintf(w, "address  %s\nkey file %s\n", view.Address, view.KeyFile)
	case handshakeView:
		if view.IsNewAgent {
			_, err = fmt.Fprintf(w, "registered %s\ndefault pocket %d\n", view.Address, view.DefaultPocketID)
		} else {
			_, err = fmt.Fprintf(w, "%s already registered\n", view.Address)
		}
	case batchView:
		_, err = fmt.Fprintf(w, "completion %s (%d/%d executed, cost %d)\n",
			view.Completion, view.Executed, view.Commands, view.TotalCost)
		for _, r := range view.Results {
			if err != nil {
				break
			}
			_, err = fmt.Fprintf(w, "[%d] %s: %s\n", r.Index, r.Command, describeResult(r))
		}
	default:
		_, err = fmt.Fprintf(w, "%v\n", v)
	}
	return err
}

func describeResult(r resultView) string {
	switch {
	case r.Error != "":
		return "error " + r.Error
	case r.PocketID != 0:
		return fmt.Sprintf("pocket %d", r.PocketID)
	case r.FileID != 0:
		return fmt.Sprintf("file %d", r.FileID)
	case r.DepositAddress != "":
		return "deposit address " + r.DepositAddress
	case r.DataEncoding != "":
		return fmt.Sprintf("%s %q", r.DataEncoding, r.Data)
	default:
		return "ok"
	}
}
