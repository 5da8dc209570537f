package detection

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aethercore-labs/aethercore/crypto"
	"github.com/asaskevich/govalidator"
	"github.com/shopspring/decimal"
)

// RequestResult is the outcome of screening a single inbound request.
type RequestResult struct {
	IsValid         bool        `json:"isValid"`
	SecurityScore   int         `json:"securityScore"`
	ThreatLevel     ThreatLevel `json:"threatLevel"`
	Anomalies       []string    `json:"anomalies"`
	Recommendations []string    `json:"recommendations"`
}

const (
	penaltyOversized     = 15
	penaltyInjection     = 40
	penaltyAmount        = 25
	penaltyAddress       = 20
	penaltyReplay        = 20
	penaltySignature     = 25
	penaltyNonce         = 15
	penaltyPublicKey     = 10
	penaltyUnknownLevel  = 100
	lowThreatMinScore    = 80
	mediumThreatMinScore = 50
)

var addressFields = []string{"from", "to", "sourceAddress", "destinationAddress"}

var amountFields = []string{"amount", "fee"}

var injectionMarkers = []string{
	"<script", "javascript:", "' or '1'='1", "' or 1=1", "; drop table",
	"union select", "../", "$where", "${", "{{",
}

var recommendationFor = map[string]string{
	"empty":      "Send a non-empty request body.",
	"oversized":  "Reject oversized payloads at the transport boundary.",
	"injection":  "Block the source and audit input sanitisation.",
	"amount":     "Submit amounts as non-negative decimal strings.",
	"address":    "Use alphanumeric ledger addresses.",
	"replay":     "Attach a fresh timestamp and nonce to every request.",
	"signature":  "Sign requests with an ML-DSA key.",
	"nonce":      "Include a unique nonce at security level 4 and above.",
	"public_key": "Include the signer's public key at security level 5.",
	"level":      "Use a security level between 1 and 5.",
}

type screen struct {
	penalty   int
	critical  bool
	anomalies []string
	kinds     map[string]struct{}
}

func (s *screen) flag(kind string, penalty int, format string, args ...interface{}) {
	s.penalty += penalty
	s.anomalies = append(s.anomalies, fmt.Sprintf(format, args...))
	s.kinds[kind] = struct{}{}
}

// ValidateRequest screens request against the rules of securityLevel.
// Higher levels require more authentication material.
func (a *Analyzer) ValidateRequest(request map[string]interface{}, securityLevel crypto.SecurityLevel) RequestResult {
	s := &screen{kinds: map[string]struct{}{}}

	if !securityLevel.Valid() {
		s.flag("level", penaltyUnknownLevel, "unsupported security level %d", securityLevel)
		s.critical = true
	}
	if len(request) == 0 {
		s.flag("empty", penaltyUnknownLevel, "request is empty")
		s.critical = true
	}

	a.screenStrings(s, request)
	screenAmounts(s, request)
	a.screenAddresses(s, request)
	a.screenTimestamp(s, request)

	if securityLevel >= 3 {
		sig := stringField(request, "signature")
		if sig == "" {
			s.flag("signature", penaltySignature, "signature is required at security level %d", securityLevel)
		} else if !govalidator.IsHexadecimal(sig) && !govalidator.IsBase64(sig) {
			s.flag("signature", penaltySignature, "signature is neither hex nor base64")
		}
	}
	if securityLevel >= 4 && stringField(request, "nonce") == "" && !hasNumber(request, "nonce") {
		s.flag("nonce", penaltyNonce, "nonce is required at security level %d", securityLevel)
	}
	if securityLevel >= 5 && stringField(request, "publicKey") == "" {
		s.flag("public_key", penaltyPublicKey, "public key is required at security level %d", securityLevel)
	}

	score := 100 - s.penalty
	if score < 0 {
		score = 0
	}
	threat := ThreatHigh
	switch {
	case s.critical:
	case score >= lowThreatMinScore:
		threat = ThreatLow
	case score >= mediumThreatMinScore:
		threat = ThreatMedium
	}

	res := RequestResult{
		IsValid:         threat != ThreatHigh,
		SecurityScore:   score,
		ThreatLevel:     threat,
		Anomalies:       s.anomalies,
		Recommendations: recommendations(s.kinds),
	}
	if res.Anomalies == nil {
		res.Anomalies = []string{}
	}
	return res
}

func recommendations(kinds map[string]struct{}) []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, recommendationFor[k])
	}
	sort.Strings(out)
	return out
}

func (a *Analyzer) screenStrings(s *screen, request map[string]interface{}) {
	keys := make([]string, 0, len(request))
	for k := range request {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, ok := request[k].(string)
		if !ok {
			continue
		}
		limit := a.thresholds.MaxFieldLength
		if k == "data" {
			limit = a.thresholds.MaxDataBytes
		}
		if len(v) > limit {
			s.flag("oversized", penaltyOversized, "field %s is %d bytes, limit %d", k, len(v), limit)
		}
		lower := strings.ToLower(v)
		for _, marker := range injectionMarkers {
			if strings.Contains(lower, marker) {
				s.flag("injection", penaltyInjection, "field %s contains injection pattern %q", k, marker)
				s.critical = true
				break
			}
		}
	}
}

func screenAmounts(s *screen, request map[string]interface{}) {
	for _, field := range amountFields {
		raw, present := request[field]
		if !present {
			continue
		}
		str, ok := raw.(string)
		if !ok {
			s.flag("amount", penaltyAmount, "%s must be a decimal string, got %T", field, raw)
			continue
		}
		d, err := decimal.NewFromString(str)
		if err != nil {
			s.flag("amount", penaltyAmount, "%s %q is not a decimal", field, str)
			continue
		}
		if d.IsNegative() {
			s.flag("amount", penaltyAmount, "%s %q is negative", field, str)
		}
	}
}

func (a *Analyzer) screenAddresses(s *screen, request map[string]interface{}) {
	for _, field := range addressFields {
		raw, present := request[field]
		if !present {
			continue
		}
		addr, _ := raw.(string)
		switch {
		case addr == "":
			s.flag("address", penaltyAddress, "%s is empty", field)
		case len(addr) > a.thresholds.MaxAddressLength:
			s.flag("address", penaltyAddress, "%s exceeds %d characters", field, a.thresholds.MaxAddressLength)
		case !govalidator.IsAlphanumeric(addr):
			s.flag("address", penaltyAddress, "%s contains non-alphanumeric characters", field)
		}
	}
}

func (a *Analyzer) screenTimestamp(s *screen, request map[string]interface{}) {
	raw, present := request["timestamp"]
	if !present {
		return
	}
	ms, ok := toMillis(raw)
	if !ok {
		s.flag("replay", penaltyReplay, "timestamp %v is not a unix millisecond value", raw)
		return
	}
	now := a.now()
	ts := time.UnixMilli(ms)
	if age := now.Sub(ts); age > a.thresholds.ReplayWindow {
		s.flag("replay", penaltyReplay, "timestamp is %s old, possible replay", age.Truncate(time.Second))
	} else if -age > a.thresholds.ReplayWindow {
		s.flag("replay", penaltyReplay, "timestamp is %s in the future", (-age).Truncate(time.Second))
	}
}

func stringField(request map[string]interface{}, key string) string {
	v, _ := request[key].(string)
	return strings.TrimSpace(v)
}

func hasNumber(request map[string]interface{}, key string) bool {
	_, ok := toMillis(request[key])
	return ok
}

func toMillis(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		if !govalidator.IsInt(n) {
			return 0, false
		}
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}
