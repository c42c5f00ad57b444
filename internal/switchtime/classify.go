package switchtime

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"streetlight_monitor/internal/calendar"
	"streetlight_monitor/internal/model"
	"streetlight_monitor/internal/stats"
)

// Level grades a finding.
type Level string

const (
	LevelNone    Level = ""
	LevelOk      Level = "Ok"
	LevelWarning Level = "Warning"
	LevelError   Level = "Error"
)

func (l Level) rank() int {
	switch l {
	case LevelOk:
		return 1
	case LevelWarning:
		return 2
	case LevelError:
		return 3
	}
	return 0
}

// Highest returns the most severe level, LevelNone for an empty input.
func Highest(levels ...Level) Level {
	out := LevelNone
	for _, l := range levels {
		if l.rank() > out.rank() {
			out = l
		}
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// TimeInfo grades the smaller of the two switch offsets and describes the
// direction of the larger problem.
func TimeInfo(offCheck, onCheck int) (Level, string) {
	diff := min(abs(offCheck), abs(onCheck))
	if diff <= model.OKLimitSeconds {
		return LevelOk, ""
	}

	level := LevelError
	if diff <= model.WarningLimitSeconds {
		level = LevelWarning
	}

	var direction string
	switch {
	case offCheck < 0:
		direction = "switch off too early"
	case offCheck > 0 && abs(offCheck) > abs(onCheck):
		direction = "switch off too late"
	case onCheck < 0:
		direction = "switch on too early"
	default:
		direction = "switch on too late"
	}
	return level, direction + ": " + calendar.FormatSeconds(diff, false)
}

// Comparison is the simple comparison of real and expected switch times.
type Comparison struct {
	LogLevel           Level  `json:"log_level"`
	SwitchOff          string `json:"switch_off"`
	SwitchOn           string `json:"switch_on"`
	SwitchOffInfo      string `json:"switch_off_info"`
	SwitchOnInfo       string `json:"switch_on_info"`
	WrongSwitchOffTime bool   `json:"wrong_switch_off_time"`
	WrongSwitchOnTime  bool   `json:"wrong_switch_on_time"`
}

// CompareSimple checks the real windows against the expected ones. A real
// window is inaccurate when a boundary is unknown or it spans more than the
// interval warning limit; it is early or late when it lies more than the Ok
// limit away from the expected window.
func CompareSimple(real, expected Times) Comparison {
	offInfo, offWrong := compareWindow(real.Off, expected.Off)
	onInfo, onWrong := compareWindow(real.On, expected.On)

	c := Comparison{
		LogLevel:           LevelOk,
		SwitchOff:          real.Off.String(),
		SwitchOn:           real.On.String(),
		SwitchOffInfo:      strings.Join(offInfo, ", "),
		SwitchOnInfo:       strings.Join(onInfo, ", "),
		WrongSwitchOffTime: offWrong,
		WrongSwitchOnTime:  onWrong,
	}
	if offWrong || onWrong {
		c.LogLevel = LevelWarning
	}
	return c
}

func compareWindow(real, expected Window) (info []string, wrong bool) {
	if n := IntervalLength(real); n < 0 || n > model.IntervalWarningLimitSecs {
		info = append(info, "inaccurate")
	}
	switch d := WindowDistance(real, expected); {
	case d < -model.OKLimitSeconds:
		info = append(info, "early "+calendar.FormatSeconds(-d, false))
	case d > model.OKLimitSeconds:
		info = append(info, "late "+calendar.FormatSeconds(d, false))
	}
	return info, len(info) > 0
}

// HistoryInfo renders the hour's history as "(avg=X, std=Y)" with one
// decimal, phases joined by ";". Empty without both statistics.
func HistoryInfo(h model.HourStat) string {
	if !h.Avg.Present() || !h.Stdev.Present() {
		return ""
	}
	return fmt.Sprintf("(avg=%s, std=%s)", oneDecimal(h.Avg), oneDecimal(h.Stdev))
}

func oneDecimal(v model.AttributeValue) string {
	if x, ok := v.Float(); ok {
		return strconv.FormatFloat(model.Round(x, 1), 'f', 1, 64)
	}
	parts := make([]string, len(model.Phases))
	for i, p := range model.Phases {
		if x, ok := v.Phase(p); ok {
			parts[i] = strconv.FormatFloat(model.Round(x, 1), 'f', 1, 64)
		}
	}
	return strings.Join(parts, ";")
}

// AttributeInfo is the analysis of one attribute in one bucket.
type AttributeInfo struct {
	Value   model.AttributeValue `json:"value"`
	Level   Level                `json:"info_level"`
	Light   Status               `json:"light_info"`
	Problem string               `json:"problem_info"`
	Extra   string               `json:"extra_info"`
}

// CheckAttribute grades one attribute against the expected switch state.
// offCheck and onCheck are the distances of the bucket from the expected
// switch-off and switch-on windows.
func CheckAttribute(service model.Service, offCheck, onCheck int, attr string, obs model.Observation) AttributeInfo {
	extra := HistoryInfo(obs.History)
	if service == model.ServiceTampere && attr == model.AttrVoltage {
		return AttributeInfo{Value: obs.Value, Extra: extra}
	}

	light := LightStatus(obs)
	historyLevel := func() Level {
		if model.HistoryComparisonAttributes[attr] && !stats.WithinLimits(obs) {
			return LevelWarning
		}
		return LevelOk
	}

	var level Level
	switch {
	case offCheck < 0 || onCheck > 0:
		if light != StatusOff {
			level = historyLevel()
		} else {
			level, _ = TimeInfo(offCheck, onCheck)
		}
	case offCheck > 0 && onCheck < 0:
		if light != StatusOff {
			level, _ = TimeInfo(offCheck, onCheck)
		} else {
			level = historyLevel()
		}
	default:
		level = LevelOk
	}

	if level == LevelOk && (!obs.Value.Present() || model.OutOfRange(attr, obs.Value)) {
		level = LevelWarning
	}

	info := AttributeInfo{Value: obs.Value, Level: level, Light: light, Extra: extra}
	if level == LevelWarning || level == LevelError {
		info.Problem = "unusual"
	}
	return info
}

// BucketInfo is the combined analysis of one bucket.
type BucketInfo struct {
	Bucket     string                   `json:"time"`
	Level      Level                    `json:"log_level"`
	Light      string                   `json:"light_info"`
	Problem    string                   `json:"problem_info"`
	Extra      string                   `json:"extra_info"`
	Attributes map[string]AttributeInfo `json:"attributes"`
}

// BucketReport analyses the service attributes of one bucket against the
// expected switch windows.
func BucketReport(service model.Service, bucket string, attrs model.AnnotatedBucket, expected Times, season calendar.Season) BucketInfo {
	offCheck, onCheck := bucketChecks(bucket, expected, season)

	out := BucketInfo{Bucket: bucket, Attributes: map[string]AttributeInfo{}}
	var levels []Level
	lights := map[string]bool{}
	var problems, extras []string

	for _, attr := range service.Info().Attributes {
		obs, ok := attrs[attr]
		if !ok {
			continue
		}
		info := CheckAttribute(service, offCheck, onCheck, attr, obs)
		out.Attributes[attr] = info
		if info.Level != LevelNone {
			levels = append(levels, info.Level)
		}
		if info.Light != StatusNone && info.Light != StatusUnknown {
			lights[string(info.Light)] = true
		}
		if info.Problem != "" {
			problems = append(problems, info.Problem+" "+model.ShortNames[attr])
		}
		if info.Extra != "" {
			extras = append(extras, model.ShortNames[attr]+": "+info.Extra)
		}
	}

	out.Level = Highest(levels...)
	if out.Level == LevelNone {
		out.Level = LevelOk
	}

	names := make([]string, 0, len(lights))
	for l := range lights {
		names = append(names, l)
	}
	sort.Strings(names)
	out.Light = strings.Join(names, "/")

	expectedLight := StatusUnknown
	switch {
	case offCheck < 0 || onCheck > 0:
		expectedLight = StatusOn
	case offCheck > 0 && onCheck < 0:
		expectedLight = StatusOff
	}
	if out.Level != LevelOk &&
		((expectedLight == StatusOn && out.Light == string(StatusOff)) ||
			(expectedLight == StatusOff && out.Light == string(StatusOn))) {
		if _, text := TimeInfo(offCheck, onCheck); text != "" {
			problems = append([]string{text}, problems...)
		}
	}

	out.Problem = strings.Join(problems, "\n")
	out.Extra = strings.Join(extras, "\n")
	return out
}

// bucketChecks measures the bucket interval against the expected windows in
// seasonal seconds.
func bucketChecks(bucket string, expected Times, season calendar.Season) (offCheck, onCheck int) {
	start := clockMark(bucket, season)
	end := start
	end.Sec += model.RecentDataInterval

	offCheck = Distance(start, end, clockMark(expected.Off.Low, season), clockMark(expected.Off.High, season))
	onCheck = Distance(start, end, clockMark(expected.On.Low, season), clockMark(expected.On.High, season))
	return offCheck, onCheck
}

// ClassifyOffset grades a single signed switch offset in seconds.
func ClassifyOffset(offset int) Level {
	switch d := abs(offset); {
	case d <= model.OKLimitSeconds:
		return LevelOk
	case d <= model.WarningLimitSeconds:
		return LevelWarning
	}
	return LevelError
}
