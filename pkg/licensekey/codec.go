// Package licensekey implements the canonical license payload encoding and
// the user-facing key string format.
//
// The canonical byte form is what gets signed: field order and width are
// fixed per schema version so re-encoding a decoded payload reproduces the
// exact signed bytes. The key string wraps canonical bytes plus signature in
// unpadded base32, hyphen-grouped for readability, e.g.
//
//	RFLX-AEBAG-BA2DQ-PCAIB-...
package licensekey

import (
	"bytes"
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CurrentSchemaVersion is the version stamped on newly issued licenses.
const CurrentSchemaVersion uint8 = 1

const (
	keyPrefix = "RFLX"
	groupSize = 5

	maxStringField  = 100
	maxFeatureFlags = 32
	maxFlagLength   = 50

	// SignatureSize matches ed25519 signatures; the codec treats the
	// signature as opaque bytes of this fixed width.
	SignatureSize = 64
)

var (
	ErrMalformed          = errors.New("malformed license key")
	ErrUnsupportedVersion = errors.New("unsupported license schema version")
)

var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Payload holds every signed license field. ExpiresAt nil means perpetual.
// Unlimited licenses carry MaxActivations zero on the wire; bounded licenses
// must claim at least one seat.
type Payload struct {
	SchemaVersion  uint8
	LicenseID      uuid.UUID
	ProductID      string
	CustomerID     string
	IssuedAt       time.Time
	ExpiresAt      *time.Time
	MaxActivations uint32
	Unlimited      bool
	FeatureFlags   []string
}

// EncodeCanonical produces the deterministic byte form of the payload for
// the payload's schema version. Feature flags are sorted and de-duplicated;
// timestamps are truncated to UTC seconds.
func EncodeCanonical(p Payload) ([]byte, error) {
	if p.SchemaVersion != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: cannot encode version %d", ErrUnsupportedVersion, p.SchemaVersion)
	}
	if err := validatePayload(p); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	buf.WriteByte(p.SchemaVersion)
	buf.Write(p.LicenseID[:])
	writeString(buf, p.ProductID)
	writeString(buf, p.CustomerID)
	writeInt64(buf, p.IssuedAt.UTC().Unix())

	if p.ExpiresAt != nil {
		buf.WriteByte(1)
		writeInt64(buf, p.ExpiresAt.UTC().Unix())
	} else {
		buf.WriteByte(0)
	}

	if p.Unlimited {
		buf.WriteByte(1)
		writeUint32(buf, 0)
	} else {
		buf.WriteByte(0)
		writeUint32(buf, p.MaxActivations)
	}

	flags := canonicalFlags(p.FeatureFlags)
	writeUint16(buf, uint16(len(flags)))
	for _, flag := range flags {
		writeString(buf, flag)
	}

	return buf.Bytes(), nil
}

// EncodeKey renders the user-facing key string from canonical bytes and
// their signature.
func EncodeKey(canonical, signature []byte) (string, error) {
	if len(canonical) == 0 {
		return "", fmt.Errorf("%w: empty canonical payload", ErrMalformed)
	}
	if len(signature) != SignatureSize {
		return "", fmt.Errorf("%w: signature must be %d bytes", ErrMalformed, SignatureSize)
	}

	raw := make([]byte, 0, len(canonical)+len(signature))
	raw = append(raw, canonical...)
	raw = append(raw, signature...)

	encoded := keyEncoding.EncodeToString(raw)
	groups := make([]string, 0, len(encoded)/groupSize+2)
	groups = append(groups, keyPrefix)
	for i := 0; i < len(encoded); i += groupSize {
		end := i + groupSize
		if end > len(encoded) {
			end = len(encoded)
		}
		groups = append(groups, encoded[i:end])
	}
	return strings.Join(groups, "-"), nil
}

// DecodeKey parses a key string back into its payload and signature. The
// input is tolerant of case, whitespace and hyphen grouping. Structural
// damage yields ErrMalformed; a schema version newer than this build yields
// ErrUnsupportedVersion.
func DecodeKey(key string) (Payload, []byte, error) {
	cleaned := sanitizeKey(key)
	if cleaned == "" {
		return Payload{}, nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	raw, err := keyEncoding.DecodeString(cleaned)
	if err != nil {
		return Payload{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) <= SignatureSize {
		return Payload{}, nil, fmt.Errorf("%w: truncated payload", ErrMalformed)
	}

	canonical := raw[:len(raw)-SignatureSize]
	signature := raw[len(raw)-SignatureSize:]

	payload, err := decodeCanonical(canonical)
	if err != nil {
		return Payload{}, nil, err
	}
	return payload, signature, nil
}

// SanitizeKey normalizes user input (case, hyphens, whitespace, prefix) into
// the bare base32 form. Exposed for digest computation.
func SanitizeKey(key string) string {
	return sanitizeKey(key)
}

// Digest returns the hex sha256 of the sanitized key. Stored alongside the
// license row so keys can be looked up without persisting the key itself.
func Digest(key string) string {
	sum := sha256.Sum256([]byte(sanitizeKey(key)))
	return hex.EncodeToString(sum[:])
}

func sanitizeKey(key string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(key))
	cleaned = strings.NewReplacer("-", "", " ", "").Replace(cleaned)
	cleaned = strings.TrimPrefix(cleaned, keyPrefix)
	return cleaned
}

func decodeCanonical(canonical []byte) (Payload, error) {
	r := &reader{data: canonical}

	version, err := r.byte()
	if err != nil {
		return Payload{}, err
	}
	if version == 0 || version > CurrentSchemaVersion {
		return Payload{}, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, version)
	}

	var p Payload
	p.SchemaVersion = version

	idBytes, err := r.bytes(16)
	if err != nil {
		return Payload{}, err
	}
	copy(p.LicenseID[:], idBytes)

	if p.ProductID, err = r.string(); err != nil {
		return Payload{}, err
	}
	if p.CustomerID, err = r.string(); err != nil {
		return Payload{}, err
	}

	issued, err := r.int64()
	if err != nil {
		return Payload{}, err
	}
	p.IssuedAt = time.Unix(issued, 0).UTC()

	hasExpiry, err := r.byte()
	if err != nil {
		return Payload{}, err
	}
	switch hasExpiry {
	case 0:
	case 1:
		expires, err := r.int64()
		if err != nil {
			return Payload{}, err
		}
		t := time.Unix(expires, 0).UTC()
		p.ExpiresAt = &t
	default:
		return Payload{}, fmt.Errorf("%w: invalid expiry flag %d", ErrMalformed, hasExpiry)
	}

	unlimited, err := r.byte()
	if err != nil {
		return Payload{}, err
	}
	switch unlimited {
	case 0:
		p.Unlimited = false
	case 1:
		p.Unlimited = true
	default:
		return Payload{}, fmt.Errorf("%w: invalid unlimited flag %d", ErrMalformed, unlimited)
	}

	if p.MaxActivations, err = r.uint32(); err != nil {
		return Payload{}, err
	}

	count, err := r.uint16()
	if err != nil {
		return Payload{}, err
	}
	if count > maxFeatureFlags {
		return Payload{}, fmt.Errorf("%w: too many feature flags (%d)", ErrMalformed, count)
	}
	flags := make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		flag, err := r.string()
		if err != nil {
			return Payload{}, err
		}
		flags = append(flags, flag)
	}
	p.FeatureFlags = flags

	if !r.done() {
		return Payload{}, fmt.Errorf("%w: trailing bytes", ErrMalformed)
	}
	if err := validatePayload(p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return p, nil
}

func validatePayload(p Payload) error {
	if p.LicenseID == uuid.Nil {
		return fmt.Errorf("license id is required")
	}
	if p.ProductID == "" || len(p.ProductID) > maxStringField {
		return fmt.Errorf("product id must be 1-%d bytes", maxStringField)
	}
	if p.CustomerID == "" || len(p.CustomerID) > maxStringField {
		return fmt.Errorf("customer id must be 1-%d bytes", maxStringField)
	}
	if p.IssuedAt.IsZero() {
		return fmt.Errorf("issued_at is required")
	}
	if p.Unlimited {
		if p.MaxActivations != 0 {
			return fmt.Errorf("unlimited licenses must not carry a seat count")
		}
	} else if p.MaxActivations < 1 {
		return fmt.Errorf("max_activations must be at least 1")
	}
	if len(p.FeatureFlags) > maxFeatureFlags {
		return fmt.Errorf("at most %d feature flags", maxFeatureFlags)
	}
	for _, flag := range p.FeatureFlags {
		if flag == "" || len(flag) > maxFlagLength {
			return fmt.Errorf("feature flags must be 1-%d bytes", maxFlagLength)
		}
	}
	return nil
}

func canonicalFlags(flags []string) []string {
	seen := make(map[string]struct{}, len(flags))
	out := make([]string, 0, len(flags))
	for _, flag := range flags {
		if _, ok := seen[flag]; ok {
			continue
		}
		seen[flag] = struct{}{}
		out = append(out, flag)
	}
	sort.Strings(out)
	return out
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint16(buf, uint16(len(s)))
	buf.WriteString(s)
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var scratch [2]byte
	binary.BigEndian.PutUint16(scratch[:], v)
	buf.Write(scratch[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var scratch [4]byte
	binary.BigEndian.PutUint32(scratch[:], v)
	buf.Write(scratch[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], uint64(v))
	buf.Write(scratch[:])
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("%w: unexpected end of payload", ErrMalformed)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("%w: unexpected end of payload", ErrMalformed)
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) uint16() (uint16, error) {
	raw, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(raw), nil
}

func (r *reader) uint32() (uint32, error) {
	raw, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(raw), nil
}

func (r *reader) int64() (int64, error) {
	raw, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

func (r *reader) string() (string, error) {
	length, err := r.uint16()
	if err != nil {
		return "", err
	}
	if length > maxStringField {
		return "", fmt.Errorf("%w: string field too long (%d)", ErrMalformed, length)
	}
	raw, err := r.bytes(int(length))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (r *reader) done() bool {
	return r.pos == len(r.data)
}
