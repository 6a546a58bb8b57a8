package settlement

import (
	"math"
	"strconv"
	"strings"

	"github.com/alanyoungcy/wagerbook/internal/domain"
)

// Raw result codes reported by the match feed.
const (
	CodeNotFinished int64 = -1
	CodeAwayWin     int64 = 0
	CodeHomeWin     int64 = 1
	CodeDraw        int64 = 2
)

// InterpretReading validates a reading against the market's trusted feed and
// maps its value to an outcome. Feed ids are opaque and must match exactly.
// It returns the raw code for audit.
func InterpretReading(oracleRef string, reading domain.OracleReading) (domain.Outcome, int64, error) {
	if reading.FeedID == "" || reading.FeedID != oracleRef {
		return domain.OutcomePending, 0, domain.ErrInvalidFeed
	}
	code, err := parseCode(reading.Value)
	if err != nil {
		return domain.OutcomePending, 0, err
	}
	outcome, err := OutcomeFromCode(code)
	if err != nil {
		return domain.OutcomePending, code, err
	}
	return outcome, code, nil
}

// OutcomeFromCode is the single mapping from feed codes to outcomes.
func OutcomeFromCode(code int64) (domain.Outcome, error) {
	switch {
	case code < 0:
		return domain.OutcomePending, domain.ErrMatchNotFinished
	case code == CodeAwayWin:
		return domain.OutcomeAway, nil
	case code == CodeHomeWin:
		return domain.OutcomeHome, nil
	case code == CodeDraw:
		return domain.OutcomeDraw, nil
	default:
		return domain.OutcomePending, domain.ErrInvalidOracleValue
	}
}

// parseCode accepts an integer, or a decimal with a zero fraction as some
// feeds report "1.0". The result must fit in an int8.
func parseCode(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	code, err := strconv.ParseInt(raw, 10, 8)
	if err == nil {
		return code, nil
	}
	f, ferr := strconv.ParseFloat(raw, 64)
	if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, domain.ErrInvalidOracleValue
	}
	if f < math.MinInt8 || f > math.MaxInt8 {
		return 0, domain.ErrInvalidOracleValue
	}
	return int64(f), nil
}

func normalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
