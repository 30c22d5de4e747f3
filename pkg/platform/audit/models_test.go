package audit

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type ModelSuite struct {
	suite.Suite
}

func TestModelSuite(t *testing.T) {
	suite.Run(t, new(ModelSuite))
}

func (s *ModelSuite) TestDescribeUserAgent() {
	s.Run("empty user agent returns unknown device", func() {
		s.Equal("Unknown Device", DescribeUserAgent("  "))
	})

	s.Run("chrome on desktop includes browser and OS", func() {
		result := DescribeUserAgent("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		s.Contains(result, "Chrome 120")
		s.Contains(result, " on ")
		s.NotContains(result, "  ")
	})

	s.Run("safari on iphone includes platform", func() {
		result := DescribeUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
		s.Contains(result, " on ")
		s.Contains(result, "iPhone")
	})

	s.Run("firefox on linux includes browser and OS", func() {
		result := DescribeUserAgent("Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
		s.Contains(result, "Firefox")
		s.Contains(result, "Linux")
	})

	s.Run("unknown user agent still has both parts", func() {
		result := DescribeUserAgent("Unknown/1.0")
		s.Contains(result, " on ")
		s.NotEmpty(result)
	})
}

func (s *ModelSuite) TestQueryMatches() {
	s.Run("failures only excludes successful records", func() {
		q := Query{FailuresOnly: true}
		s.False(q.Matches(Record{Success: true}))
		s.True(q.Matches(Record{Success: false}))
	})

	s.Run("resource filter needs type and id", func() {
		q := Query{ResourceType: "USER", ResourceID: "u1"}
		s.True(q.Matches(Record{ResourceType: "USER", ResourceID: "u1"}))
		s.False(q.Matches(Record{ResourceType: "USER", ResourceID: "u2"}))
	})
}

func (s *ModelSuite) TestActionCategory() {
	s.Equal(CategorySecurity, ActionAIQueryPermissionDenied.Category())
	s.Equal(CategoryCompliance, ActionAIQueryComplianceViolation.Category())
	s.Equal(CategoryOperations, Action("SOMETHING_NEW").Category())
}
