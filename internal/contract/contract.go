// Package contract handles option leg ticker parsing, validation, and
// formatting.
package contract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/atmx/options-engine/internal/fixedpoint"
	"github.com/atmx/options-engine/internal/model"
)

// ExpiryHour is the UTC hour at which every listed option expires.
const ExpiryHour = 8

const dateLayout = "20060102"

// MaxAssetLen caps the length of an asset symbol.
const MaxAssetLen = 16

// tickerRegex matches: {ASSET}-{YYYYMMDD}-{STRIKE}-{C|P}
// Example: ETH-20250815-2500-C
var tickerRegex = regexp.MustCompile(
	`^([A-Z][A-Z0-9]{0,15})-(\d{8})-([0-9]+(?:\.[0-9]+)?)-([CP])$`,
)

var assetRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,15}$`)

var (
	ErrInvalidTicker = errors.New("contract: invalid ticker format")
	ErrInvalidStrike = errors.New("contract: strike must be positive")
	ErrInvalidAsset  = errors.New("contract: invalid asset symbol")
)

// ParseAsset upper-cases an asset symbol and checks it against the ticker
// asset pattern.
func ParseAsset(asset string) (string, error) {
	upper := strings.ToUpper(asset)
	if !assetRegex.MatchString(upper) {
		return "", fmt.Errorf("%w: %q (expected [A-Z][A-Z0-9]*, at most %d characters)",
			ErrInvalidAsset, asset, MaxAssetLen)
	}
	return upper, nil
}

// Contract represents a parsed option leg ticker.
type Contract struct {
	Ticker     string                `json:"ticker"`
	Asset      string                `json:"asset"`
	Expiry     time.Time             `json:"expiry"`
	Strike     fixedpoint.FixedPoint `json:"strike"`
	OptionType model.OptionType      `json:"option_type"`
}

// ParseTicker parses and validates an option ticker string.
// Format: {ASSET}-{YYYYMMDD}-{STRIKE}-{C|P}
func ParseTicker(ticker string) (*Contract, error) {
	matches := tickerRegex.FindStringSubmatch(ticker)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected {ASSET}-{YYYYMMDD}-{STRIKE}-{C|P})",
			ErrInvalidTicker, ticker)
	}

	asset := matches[1]
	dateStr := matches[2]
	strikeStr := matches[3]
	typeStr := matches[4]

	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %s", ErrInvalidTicker, dateStr)
	}

	strike, err := fixedpoint.Parse(strikeStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid strike %s", ErrInvalidTicker, strikeStr)
	}
	if strike.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStrike, strikeStr)
	}

	optionType, err := model.ParseOptionType(typeStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTicker, err)
	}

	return &Contract{
		Ticker:     ticker,
		Asset:      asset,
		Expiry:     date.Add(ExpiryHour * time.Hour),
		Strike:     strike,
		OptionType: optionType,
	}, nil
}

// Ticker formats the canonical ticker for an option. The expiry is reduced to
// its UTC calendar date.
func Ticker(asset string, expiry time.Time, strike fixedpoint.FixedPoint, optionType model.OptionType) string {
	suffix := "C"
	if optionType == model.Put {
		suffix = "P"
	}
	return fmt.Sprintf("%s-%s-%s-%s",
		strings.ToUpper(asset), expiry.UTC().Format(dateLayout), strike.String(), suffix)
}

// Leg builds a position leg for this contract.
func (c *Contract) Leg(side model.Side, amount fixedpoint.FixedPoint) (model.PositionLeg, error) {
	return model.NewPositionLeg(c.OptionType, side, amount, c.Strike, c.Expiry)
}
