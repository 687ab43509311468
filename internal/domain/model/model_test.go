package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	model "github.com/okian/skillrank/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestScope(t *testing.T) {
	convey.Convey("Given scope strings", t, func() {
		convey.Convey("When parsing overall forms", func() {
			for _, raw := range []string{"", "overall", "OVERALL", "  overall "} {
				s, err := model.ParseScope(raw)
				convey.So(err, convey.ShouldBeNil)
				convey.So(s.IsOverall(), convey.ShouldBeTrue)
			}
		})

		convey.Convey("When parsing a game scope", func() {
			s, err := model.ParseScope("game:chess")

			convey.Convey("Then it should round-trip", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(s, convey.ShouldResemble, model.Game("chess"))
				convey.So(s.String(), convey.ShouldEqual, "game:chess")
				convey.So(s.Valid(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When parsing malformed scopes", func() {
			for _, raw := range []string{"game:", "game", "venue:1", "chess"} {
				_, err := model.ParseScope(raw)
				convey.So(errors.Is(err, model.ErrInvalidScope), convey.ShouldBeTrue)
			}
		})

		convey.Convey("When encoding as JSON", func() {
			b, err := json.Marshal(model.Game("go"))
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(b), convey.ShouldEqual, `"game:go"`)

			var s model.Scope
			convey.So(json.Unmarshal([]byte(`"overall"`), &s), convey.ShouldBeNil)
			convey.So(s, convey.ShouldResemble, model.Overall())
		})
	})
}

func TestPeriod(t *testing.T) {
	convey.Convey("Given a period", t, func() {
		p, err := model.ParsePeriod("2024-12")
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then its window should span the calendar month in UTC", func() {
			convey.So(p.Start(), convey.ShouldEqual, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC))
			convey.So(p.End(), convey.ShouldEqual, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
			convey.So(p.Contains(time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)), convey.ShouldBeTrue)
			convey.So(p.Contains(p.End()), convey.ShouldBeFalse)
		})

		convey.Convey("Then navigation should cross year boundaries", func() {
			convey.So(p.Next().String(), convey.ShouldEqual, "2025-01")
			convey.So(p.Previous().String(), convey.ShouldEqual, "2024-11")
			convey.So(p.Previous().Before(p), convey.ShouldBeTrue)
			convey.So(p.Before(p), convey.ShouldBeFalse)
		})

		convey.Convey("When encoding as JSON", func() {
			b, err := json.Marshal(struct {
				P model.Period `json:"p"`
			}{p})
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(b), convey.ShouldEqual, `{"p":"2024-12"}`)

			var back struct {
				P model.Period `json:"p"`
			}
			convey.So(json.Unmarshal(b, &back), convey.ShouldBeNil)
			convey.So(back.P, convey.ShouldResemble, p)
		})

		convey.Convey("When parsing invalid input", func() {
			_, err := model.ParsePeriod("2024-13")
			convey.So(errors.Is(err, model.ErrInvalidPeriod), convey.ShouldBeTrue)
			_, err = model.NewPeriod(2024, 0)
			convey.So(errors.Is(err, model.ErrInvalidPeriod), convey.ShouldBeTrue)
		})
	})
}

func TestNewPlayerRating(t *testing.T) {
	convey.Convey("Given a newly observed player", t, func() {
		r := model.NewPlayerRating("p1", model.Overall())

		convey.Convey("Then it should carry the Glicko2 seed values", func() {
			convey.So(r.Rating, convey.ShouldEqual, 1500.0)
			convey.So(r.Deviation, convey.ShouldEqual, 350.0)
			convey.So(r.Volatility, convey.ShouldEqual, 0.06)
			convey.So(r.GamesPlayed, convey.ShouldEqual, 0)
		})
	})
}
