package gazetteer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/FACorreiaa/go-location-resolver/internal/types"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { TestingT(t) }

type GazetteerSuite struct {
	g *Gazetteer
}

var _ = Suite(&GazetteerSuite{})

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func (s *GazetteerSuite) SetUpSuite(c *C) {
	g, err := New(discard)
	c.Assert(err, IsNil)
	s.g = g
}

func (s *GazetteerSuite) TestEmbeddedTableLoads(c *C) {
	c.Assert(s.g.Len() > 0, Equals, true)
	for _, country := range s.g.Countries() {
		c.Assert(len(country.Code), Equals, 2)
		c.Assert(country.Name, Not(Equals), "")
	}
}

func (s *GazetteerSuite) TestSearchStaticMatchesNameCaseInsensitive(c *C) {
	got := s.g.SearchStatic("mUm", "India")
	c.Assert(len(got) >= 1, Equals, true)
	c.Assert(got[0].Name, Equals, "Mumbai")
	c.Assert(got[0].IsPopular, Equals, true)
	for _, loc := range got {
		c.Assert(loc.Country, Equals, "India")
	}
}

func (s *GazetteerSuite) TestSearchStaticMatchesState(c *C) {
	got := s.g.SearchStatic("rajasthan", "India")
	c.Assert(len(got), Equals, 3)
	for _, loc := range got {
		c.Assert(loc.State, Equals, "Rajasthan")
	}
}

func (s *GazetteerSuite) TestSearchStaticRestrictsCountry(c *C) {
	c.Assert(s.g.SearchStatic("Mumbai", "France"), HasLen, 0)
	c.Assert(s.g.SearchStatic("Mumbai", "IN"), Not(HasLen), 0)
}

func (s *GazetteerSuite) TestSearchStaticRanking(c *C) {
	got := s.g.SearchStatic("San", "United States")
	c.Assert(len(got) >= 3, Equals, true)
	// popular records first, the non-popular San Diego last
	c.Assert(got[len(got)-1].Name, Equals, "San Diego")
	c.Assert(got[0].IsPopular, Equals, true)
}

func (s *GazetteerSuite) TestFilterPopular(c *C) {
	got := s.g.FilterPopular("India")
	c.Assert(len(got) >= 3, Equals, true)
	for _, loc := range got {
		c.Assert(loc.IsPopular, Equals, true)
		c.Assert(loc.Country, Equals, "India")
	}
	c.Assert(*got[0].Population >= *got[1].Population, Equals, true)
}

func (s *GazetteerSuite) TestFindByID(c *C) {
	loc, ok := s.g.FindByID("static-mumbai")
	c.Assert(ok, Equals, true)
	c.Assert(loc.Name, Equals, "Mumbai")

	_, ok = s.g.FindByID("nope")
	c.Assert(ok, Equals, false)
}

func (s *GazetteerSuite) TestCountryCode(c *C) {
	code, ok := s.g.CountryCode("india")
	c.Assert(ok, Equals, true)
	c.Assert(code, Equals, "IN")

	code, ok = s.g.CountryCode("fr")
	c.Assert(ok, Equals, true)
	c.Assert(code, Equals, "FR")

	_, ok = s.g.CountryCode("Atlantis")
	c.Assert(ok, Equals, false)
}

func (s *GazetteerSuite) TestNearest(c *C) {
	got := s.g.Nearest(types.Coordinates{Lat: 19.0, Lng: 72.9}, 2)
	c.Assert(got, HasLen, 2)
	c.Assert(got[0].Name, Equals, "Mumbai")
	c.Assert(got[1].Name, Equals, "Navi Mumbai")
}

const smallTable = `[
  {"id":"t-1","name":"Alpha","country":"Testland","countryCode":"TL","lat":1,"lng":1,"isPopular":true},
  {"id":"t-2","name":"Beta","country":"Testland","countryCode":"TL","lat":2,"lng":2}
]`

func (s *GazetteerSuite) TestNewFromFileAndReload(c *C) {
	path := filepath.Join(c.MkDir(), "table.json")
	c.Assert(os.WriteFile(path, []byte(smallTable), 0o600), IsNil)

	g, err := NewFromFile(path, discard)
	c.Assert(err, IsNil)
	c.Assert(g.Len(), Equals, 2)

	c.Assert(os.WriteFile(path, []byte(`[{"id":"","name":"broken"}]`), 0o600), IsNil)
	c.Assert(g.Reload(path), NotNil)
	c.Assert(g.Len(), Equals, 2)
}

func (s *GazetteerSuite) TestRejectsDuplicateIDs(c *C) {
	_, err := parseTable([]byte(`[
	  {"id":"x","name":"A","country":"C","lat":0,"lng":0},
	  {"id":"x","name":"B","country":"C","lat":0,"lng":0}
	]`))
	c.Assert(err, ErrorMatches, `.*duplicate id.*`)
}

func (s *GazetteerSuite) TestWatchReloadsOnWrite(c *C) {
	path := filepath.Join(c.MkDir(), "table.json")
	c.Assert(os.WriteFile(path, []byte(smallTable), 0o600), IsNil)

	g, err := NewFromFile(path, discard)
	c.Assert(err, IsNil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Assert(g.Watch(ctx, path), IsNil)

	c.Assert(os.WriteFile(path, []byte(`[{"id":"t-9","name":"Gamma","country":"Testland","lat":3,"lng":3}]`), 0o600), IsNil)

	deadline := time.Now().Add(3 * time.Second)
	for g.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	c.Assert(g.Len(), Equals, 1)
	_, ok := g.FindByID("t-9")
	c.Assert(ok, Equals, true)
}
