// Package attestation builds the payloads posted for attested addresses.
//
// A public payload carries the email and a user id. A private payload carries
// only a hash of the blinded profile and the user id; the blinding values stay
// with the user as the source profile.
package attestation

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	FieldEmail       = "email"
	FieldUserID      = "user_id"
	FieldProfileHash = "profile_hash"

	blindingSize = 12
)

var ErrMalformedPayload = errors.New("malformed attestation payload")

type Payload struct {
	Address string            `json:"address"`
	Profile map[string]string `json:"profile"`
}

func (p *Payload) UserID() string {
	return p.Profile[FieldUserID]
}

// SrcProfile maps a hidden field to its [value, blinding] pair.
type SrcProfile map[string][2]string

// Hash is the base64 sha256 of the JSON encoding of v. Map keys are encoded
// sorted, so equal values always hash the same.
func Hash(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode value for hashing: %w", err)
	}
	sum := sha256.Sum256(raw)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

type Builder struct {
	salt     string
	blinding func() (string, error)
}

func NewBuilder(salt string) *Builder {
	return &Builder{salt: salt, blinding: randomBlinding}
}

func randomBlinding() (string, error) {
	buf := make([]byte, blindingSize)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// UserID is stable for a profile: the same email always gives the same id.
func (b *Builder) UserID(profile map[string]string) (string, error) {
	return Hash([]interface{}{profile, b.salt})
}

// Build returns the payload for address and, for private attestations, the
// source profile the user needs to disclose the email later.
func (b *Builder) Build(address, email string, public bool) (*Payload, SrcProfile, error) {
	profile := map[string]string{FieldEmail: email}
	userID, err := b.UserID(profile)
	if err != nil {
		return nil, nil, err
	}

	if public {
		profile[FieldUserID] = userID
		return &Payload{Address: address, Profile: profile}, nil, nil
	}

	hidden := make(map[string]string, len(profile))
	src := make(SrcProfile, len(profile))
	for field, value := range profile {
		blinding, err := b.blinding()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate blinding: %w", err)
		}
		if hidden[field], err = Hash([]string{value, blinding}); err != nil {
			return nil, nil, err
		}
		src[field] = [2]string{value, blinding}
	}

	profileHash, err := Hash(hidden)
	if err != nil {
		return nil, nil, err
	}
	return &Payload{
		Address: address,
		Profile: map[string]string{FieldProfileHash: profileHash, FieldUserID: userID},
	}, src, nil
}

func Encode(p *Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(raw), nil
}

func Decode(raw string) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Address == "" || p.Profile == nil {
		return nil, fmt.Errorf("%w: missing address or profile", ErrMalformedPayload)
	}
	return &p, nil
}

func EncodeSrcProfile(src SrcProfile) (*string, error) {
	if src == nil {
		return nil, nil
	}
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("failed to encode source profile: %w", err)
	}
	s := string(raw)
	return &s, nil
}

func DecodeSrcProfile(raw *string) (SrcProfile, error) {
	if raw == nil {
		return nil, nil
	}
	var src SrcProfile
	if err := json.Unmarshal([]byte(*raw), &src); err != nil {
		return nil, fmt.Errorf("failed to decode source profile: %w", err)
	}
	return src, nil
}

type privateProfile struct {
	Unit        string     `json:"unit"`
	PayloadHash string     `json:"payload_hash"`
	SrcProfile  SrcProfile `json:"src_profile"`
}

// PrivateProfile is the blob handed to the user after a private attestation
// is posted in unit.
func PrivateProfile(unit string, p *Payload, src SrcProfile) (string, error) {
	payloadHash, err := Hash(p)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(privateProfile{Unit: unit, PayloadHash: payloadHash, SrcProfile: src})
	if err != nil {
		return "", fmt.Errorf("failed to encode private profile: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
