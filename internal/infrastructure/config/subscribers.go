package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/orris-inc/cellcore/internal/domain/subscriber"
	vo "github.com/orris-inc/cellcore/internal/domain/subscriber/valueobjects"
	apperrors "github.com/orris-inc/cellcore/internal/shared/errors"
	"github.com/orris-inc/cellcore/internal/shared/utils"
)

// SubscriberFile is the on-disk subscriber table.
type SubscriberFile struct {
	Subscribers []SubscriberEntry `yaml:"subscribers" validate:"dive"`
}

// SubscriberEntry is one provisioned subscriber. Active defaults to true.
type SubscriberEntry struct {
	IMSI      string `yaml:"imsi" validate:"required,digits,min=5,max=15"`
	Algorithm string `yaml:"algorithm" validate:"omitempty,oneof=none comp128 milenage"`
	Key       string `yaml:"key" validate:"required"`
	OP        string `yaml:"op" validate:"omitempty,hexadecimal"`
	AMF       string `yaml:"amf" validate:"omitempty,len=4,hexadecimal"`
	Number    string `yaml:"number" validate:"omitempty,digits"`
	ShortCode string `yaml:"short_code" validate:"omitempty,digits"`
	Active    *bool  `yaml:"active"`
}

// LoadSubscribers reads the subscriber table. An empty path or a missing file
// yields an empty table.
func LoadSubscribers(path string) ([]*subscriber.Profile, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read subscribers file: %w", err)
	}
	return ParseSubscribers(data)
}

// ParseSubscribers decodes and validates a subscriber table. Identities,
// numbers and short codes must be unique.
func ParseSubscribers(data []byte) ([]*subscriber.Profile, error) {
	var file SubscriberFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperrors.NewConfigError("invalid subscribers file", err.Error())
	}
	if err := utils.ValidateStruct(&file); err != nil {
		return nil, err
	}

	var (
		profiles   = make([]*subscriber.Profile, 0, len(file.Subscribers))
		imsis      = make(map[string]bool)
		numbers    = make(map[string]string)
		shortCodes = make(map[string]string)
	)
	for _, e := range file.Subscribers {
		if imsis[e.IMSI] {
			return nil, apperrors.NewConfigError("duplicate subscriber", e.IMSI)
		}
		imsis[e.IMSI] = true

		if e.Number != "" {
			if owner, ok := numbers[e.Number]; ok {
				return nil, apperrors.NewConfigError("number assigned twice", fmt.Sprintf("%s: %s and %s", e.Number, owner, e.IMSI))
			}
			numbers[e.Number] = e.IMSI
		}
		if e.ShortCode != "" {
			if owner, ok := shortCodes[e.ShortCode]; ok {
				return nil, apperrors.NewConfigError("short code assigned twice", fmt.Sprintf("%s: %s and %s", e.ShortCode, owner, e.IMSI))
			}
			shortCodes[e.ShortCode] = e.IMSI
		}

		p, err := e.profile()
		if err != nil {
			return nil, apperrors.NewConfigError("invalid subscriber", err.Error())
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (e SubscriberEntry) profile() (*subscriber.Profile, error) {
	algorithm, err := vo.ParseAlgorithm(e.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.IMSI, err)
	}
	active := true
	if e.Active != nil {
		active = *e.Active
	}

	p := &subscriber.Profile{
		IMSI:      e.IMSI,
		Algorithm: algorithm,
		Secret: subscriber.Secret{
			Key: strings.ToUpper(e.Key),
			OP:  strings.ToUpper(e.OP),
			AMF: strings.ToUpper(e.AMF),
		},
		Number:    e.Number,
		ShortCode: e.ShortCode,
		Active:    active,
		Auth:      subscriber.AuthState{Phase: vo.AuthPhaseIdle},
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
