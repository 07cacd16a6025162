package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// --- Query types

// QueryByHeightRequest is the body of most queries.
type QueryByHeightRequest map[string]any

func NewQueryByHeightRequest(height uint64) QueryByHeightRequest {
	return QueryByHeightRequest{"height": height}
}

// WithAddress adds the address filter.
func (r QueryByHeightRequest) WithAddress(address string) QueryByHeightRequest {
	r["address"] = address
	return r
}

// --- Scalar types

// Uint64 decodes both JSON numbers and quoted decimal strings; Pocket nodes use either
// depending on the field.
type Uint64 uint64

func (u *Uint64) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		// amounts above 2^64 do not occur; large floats do when nodes format with exponents
		f, ferr := strconv.ParseFloat(string(b), 64)
		if ferr != nil {
			return fmt.Errorf("parse uint64 %q: %w", b, err)
		}
		v = uint64(f)
	}
	*u = Uint64(v)
	return nil
}

func (u Uint64) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint64(u))
}

// --- Response types

// HeadBlock is the answer of height/.
type HeadBlock struct {
	Height Uint64 `json:"height"`
}

// BalanceResponse is the answer of balance/.
type BalanceResponse struct {
	Balance Uint64 `json:"balance"`
}

// ParamResponse is the answer of param/.
type ParamResponse struct {
	Key   string `json:"param_key"`
	Value string `json:"param_value"`
}

// AllParamsResponse is the answer of allparams/, one list per module.
type AllParamsResponse struct {
	AppParams    []ParamResponse `json:"app_params"`
	NodeParams   []ParamResponse `json:"node_params"`
	PocketParams []ParamResponse `json:"pocket_params"`
	GovParams    []ParamResponse `json:"gov_params"`
	AuthParams   []ParamResponse `json:"auth_params"`
}

// Map flattens every module into key -> value.
func (a AllParamsResponse) Map() map[string]string {
	out := map[string]string{}
	for _, group := range [][]ParamResponse{a.AppParams, a.NodeParams, a.PocketParams, a.GovParams, a.AuthParams} {
		for _, p := range group {
			out[p.Key] = p.Value
		}
	}
	return out
}

// Supply is the answer of supply/, in uPOKT.
type Supply struct {
	NodeStaked    Uint64 `json:"node_staked"`
	AppStaked     Uint64 `json:"app_staked"`
	DAO           Uint64 `json:"dao"`
	TotalStaked   Uint64 `json:"total_staked"`
	TotalUnstaked Uint64 `json:"total_unstaked"`
	Total         Uint64 `json:"total"`
}
