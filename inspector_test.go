package lcservice

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type JSONInspectorSuite struct {
	suite.Suite
	inspector Inspector
}

func (s *JSONInspectorSuite) SetupTest() {
	s.inspector = JSONInspector()
}

func TestJSONInspectorSuite(t *testing.T) {
	suite.Run(t, new(JSONInspectorSuite))
}

func (s *JSONInspectorSuite) TestReturnsViewForValidJSON() {
	view, err := s.inspector.Inspect([]byte(`{"routing": {}}`))

	s.Require().NoError(err)
	s.Assert().NotNil(view)
}

func (s *JSONInspectorSuite) TestReturnsErrorForInvalidJSON() {
	_, err := s.inspector.Inspect([]byte(`{not valid}`))

	s.Assert().ErrorIs(err, ErrInvalidJSON)
}

func (s *JSONInspectorSuite) TestReturnsErrorForEmptyInput() {
	_, err := s.inspector.Inspect([]byte{})

	s.Assert().ErrorIs(err, ErrInvalidJSON)
}

func (s *JSONInspectorSuite) TestViewOfDecodedEvent() {
	view, err := ViewOf(map[string]any{"routing": map[string]any{"sid": "sid-1"}})
	s.Require().NoError(err)

	sid, ok := view.GetString("routing/sid")
	s.Require().True(ok)
	s.Assert().Equal("sid-1", sid)
}

func (s *JSONInspectorSuite) TestViewOfNil() {
	view, err := ViewOf(nil)
	s.Require().NoError(err)

	s.Assert().False(view.HasField("routing"))
}

type JSONViewHasFieldSuite struct {
	suite.Suite
	view View
}

func (s *JSONViewHasFieldSuite) SetupTest() {
	raw := []byte(`{
		"routing": {"sid": "sid-1", "tags": ["a", "b"]},
		"event": {
			"FILE_PATH": "/bin/sh",
			"file.name": "sh",
			"PARENT": {"PID": 1}
		}
	}`)

	var err error
	s.view, err = JSONInspector().Inspect(raw)
	s.Require().NoError(err)
}

func TestJSONViewHasFieldSuite(t *testing.T) {
	suite.Run(t, new(JSONViewHasFieldSuite))
}

func (s *JSONViewHasFieldSuite) TestHasField() {
	tests := map[string]struct {
		path   string
		exists bool
	}{
		"top level":           {"routing", true},
		"nested":              {"routing/sid", true},
		"deep":                {"event/PARENT/PID", true},
		"leading slash":       {"/routing/sid", true},
		"array index":         {"routing/tags/1", true},
		"dot in key":          {"event/file.name", true},
		"dot is not a parent": {"routing.sid", false},
		"missing":             {"missing", false},
		"missing nested":      {"routing/missing", false},
		"missing deep":        {"event/PARENT/missing", false},
	}

	for name, tt := range tests {
		s.Run(name, func() {
			s.Assert().Equal(tt.exists, s.view.HasField(tt.path))
		})
	}
}

type JSONViewGetStringSuite struct {
	suite.Suite
	view View
}

func (s *JSONViewGetStringSuite) SetupTest() {
	raw := []byte(`{
		"cat": "shell",
		"count": 42,
		"active": true,
		"routing": {"sid": "sid-1"}
	}`)

	var err error
	s.view, err = JSONInspector().Inspect(raw)
	s.Require().NoError(err)
}

func TestJSONViewGetStringSuite(t *testing.T) {
	suite.Run(t, new(JSONViewGetStringSuite))
}

func (s *JSONViewGetStringSuite) TestReturnsStringValue() {
	val, ok := s.view.GetString("cat")

	s.Require().True(ok)
	s.Assert().Equal("shell", val)
}

func (s *JSONViewGetStringSuite) TestReturnsNestedStringValue() {
	val, ok := s.view.GetString("routing/sid")

	s.Require().True(ok)
	s.Assert().Equal("sid-1", val)
}

func (s *JSONViewGetStringSuite) TestReturnsFalseForNumber() {
	_, ok := s.view.GetString("count")

	s.Assert().False(ok)
}

func (s *JSONViewGetStringSuite) TestReturnsFalseForBoolean() {
	_, ok := s.view.GetString("active")

	s.Assert().False(ok)
}

func (s *JSONViewGetStringSuite) TestReturnsFalseForMissingField() {
	_, ok := s.view.GetString("missing")

	s.Assert().False(ok)
}

type JSONViewGetBytesSuite struct {
	suite.Suite
	view View
}

func (s *JSONViewGetBytesSuite) SetupTest() {
	raw := []byte(`{
		"cat": "shell",
		"count": 42,
		"routing": {"sid": "sid-1"}
	}`)

	var err error
	s.view, err = JSONInspector().Inspect(raw)
	s.Require().NoError(err)
}

func TestJSONViewGetBytesSuite(t *testing.T) {
	suite.Run(t, new(JSONViewGetBytesSuite))
}

func (s *JSONViewGetBytesSuite) TestReturnsRawStringWithQuotes() {
	val, ok := s.view.GetBytes("cat")

	s.Require().True(ok)
	s.Assert().Equal(`"shell"`, string(val))
}

func (s *JSONViewGetBytesSuite) TestReturnsRawNumber() {
	val, ok := s.view.GetBytes("count")

	s.Require().True(ok)
	s.Assert().Equal("42", string(val))
}

func (s *JSONViewGetBytesSuite) TestReturnsRawObject() {
	val, ok := s.view.GetBytes("routing")

	s.Require().True(ok)
	s.Assert().Equal(`{"sid": "sid-1"}`, string(val))
}

func (s *JSONViewGetBytesSuite) TestReturnsFalseForMissingField() {
	_, ok := s.view.GetBytes("missing")

	s.Assert().False(ok)
}
