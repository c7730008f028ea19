package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"go.viam.com/test"
)

type BasicStruct struct {
	X int
	y string
}

// assertLogMatches will fuzzy match log lines. Notably, this checks the time format, but ignores
// the exact time. And it expects a match on the filename, but the exact line number can be wrong.
func assertLogMatches(t *testing.T, actual *bytes.Buffer, expected string) {
	t.Helper()

	output, err := actual.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)

	actualParts := strings.Split(strings.TrimSuffix(output, "\n"), "\t")
	expectedParts := strings.Split(expected, "\t")
	test.That(t, len(actualParts), test.ShouldEqual, len(expectedParts))
	// Use the length of the first string as a weak verification of checking that the result looks like a date.
	test.That(t, len(actualParts[0]), test.ShouldEqual, len(expectedParts[0]))
	test.That(t, actualParts[1], test.ShouldEqual, expectedParts[1])

	actualFilename, actualLineNumber, found := strings.Cut(actualParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	expectedFilename, _, found := strings.Cut(expectedParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, actualFilename, test.ShouldEqual, expectedFilename)
	_, err = strconv.Atoi(actualLineNumber)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, actualParts[3], test.ShouldEqual, expectedParts[3])
	if len(actualParts) == 4 {
		return
	}

	expectedMap := make(map[string]any)
	test.That(t, json.Unmarshal([]byte(expectedParts[4]), &expectedMap), test.ShouldBeNil)
	actualMap := make(map[string]any)
	test.That(t, json.Unmarshal([]byte(actualParts[4]), &actualMap), test.ShouldBeNil)
	test.That(t, actualMap, test.ShouldResemble, expectedMap)
}

func TestConsoleOutputFormat(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{"", NewAtomicLevelAt(DEBUG), true, []Appender{NewWriterAppender(notStdout)}}

	logger.Info("impl Info log")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	INFO	logging/impl_test.go:56	impl Info log`)

	logger.Infof("impl %s log", "infof")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	INFO	logging/impl_test.go:60	impl infof log`)

	logger.Warnw("impl logw", "target", "T01", "attempt", 3)
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	WARN	logging/impl_test.go:64	impl logw	{"target":"T01","attempt":3}`)

	logger.Infow("BasicStruct", "BasicStruct", BasicStruct{1, "alice"})
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	INFO	logging/impl_test.go:68	BasicStruct	{"BasicStruct":{"X":1}}`)
}

func TestLevels(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)

	logger.SetLevel(WARN)
	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Errorf("kept %d", 2)
	test.That(t, observed.Len(), test.ShouldEqual, 2)
	test.That(t, observed.FilterMessage("kept 2").Len(), test.ShouldEqual, 1)

	logger.SetLevel(DEBUG)
	logger.Debugw("now kept", "k", "v")
	test.That(t, observed.FilterMessage("now kept").Len(), test.ShouldEqual, 1)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)

	level, err := LevelFromString("WARNING")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
	_, err = LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	logger.SetLevel(INFO)
	logger.CDebugw(context.Background(), "dropped again")
	ctx := EnableDebugMode(context.Background(), "")
	test.That(t, IsDebugMode(ctx), test.ShouldBeTrue)
	test.That(t, GetName(ctx), test.ShouldHaveLength, 6)
	logger.CDebugw(ctx, "traced", "attempt", 1)
	test.That(t, observed.FilterMessage("dropped again").Len(), test.ShouldEqual, 0)
	test.That(t, observed.FilterMessage("traced").Len(), test.ShouldEqual, 1)

	var parsed Level
	test.That(t, json.Unmarshal([]byte(`"error"`), &parsed), test.ShouldBeNil)
	test.That(t, parsed, test.ShouldEqual, ERROR)
}

func TestSublogger(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := NewBlankLogger("track")
	logger.AddAppender(NewWriterAppender(notStdout))

	sub := logger.Sublogger("T01")
	sub.Info("hello")
	line, err := notStdout.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.Split(line, "\t")[2], test.ShouldEqual, "track.T01")
	test.That(t, logger.Sync(), test.ShouldBeNil)
}
