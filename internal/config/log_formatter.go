package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	colorRed         = 31
	colorGreen       = 32
	colorYellow      = 33
	colorBlue        = 36
	colorGray        = 37
	colorLightGreen  = 92
	colorLightYellow = 93
	colorCyan        = 96
)

// NbFormatter prints one key=value line per entry, fields sorted by key.
type NbFormatter struct {
	NoColor bool
}

func (f *NbFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b bytes.Buffer

	f.pair(&b, "level", levelColor(entry.Level), strings.ToUpper(entry.Level.String())[:4])
	f.pair(&b, "ts", colorLightYellow, entry.Time.Format("2006-01-02 15:04:05.000"))

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		val := entry.Data[k]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		raw, err := json.Marshal(val)
		if err != nil || len(raw) == 0 {
			continue
		}
		s := string(raw)
		color := colorCyan
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			color = colorGreen
		} else if strings.HasPrefix(s, `"`) {
			color = colorLightYellow
		}
		f.pair(&b, k, color, s)
	}
	f.pair(&b, "msg", colorLightGreen, strconv.Quote(entry.Message))

	line := strings.NewReplacer("\r", `\r`, "\n", `\n`).Replace(strings.TrimPrefix(b.String(), " "))
	return []byte(line + "\n"), nil
}

func (f *NbFormatter) pair(b *bytes.Buffer, key string, color int, value string) {
	if f.NoColor {
		fmt.Fprintf(b, " %s=%s", key, value)
		return
	}
	fmt.Fprintf(b, " \x1b[%dm%s\x1b[0m=\x1b[%dm%s\x1b[0m", colorCyan, key, color, value)
}

func levelColor(level log.Level) int {
	switch level {
	case log.DebugLevel, log.TraceLevel:
		return colorGray
	case log.WarnLevel:
		return colorYellow
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		return colorRed
	default:
		return colorBlue
	}
}
