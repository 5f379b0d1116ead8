package model

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestParseOperatingDayEnd(t *testing.T) {
	is := is.New(t)

	seconds, err := ParseOperatingDayEnd("27:00:00")
	is.NoErr(err)
	is.Equal(seconds, 27*3600)

	seconds, err = ParseOperatingDayEnd("03:30:15")
	is.NoErr(err)
	is.Equal(seconds, 3*3600+30*60+15)

	_, err = ParseOperatingDayEnd("not-a-time")
	is.True(err != nil)
}

func TestOperatingDayMidnight(t *testing.T) {
	location, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("loading test time zone: %s", err)
	}

	operatingDayEndSeconds := 27 * 3600

	type args struct {
		at time.Time
	}
	tests := []struct {
		name string
		args args
		want time.Time
	}{
		{
			name: "well after midnight stays on the same calendar day",
			args: args{at: time.Date(2020, 1, 9, 14, 0, 0, 0, location)},
			want: time.Date(2020, 1, 9, 0, 0, 0, 0, location),
		},
		{
			name: "1am is still the previous operating day",
			args: args{at: time.Date(2020, 1, 9, 1, 0, 0, 0, location)},
			want: time.Date(2020, 1, 8, 0, 0, 0, 0, location),
		},
		{
			name: "exactly at the cutoff rolls onto the new day",
			args: args{at: time.Date(2020, 1, 9, 3, 0, 0, 0, location)},
			want: time.Date(2020, 1, 9, 0, 0, 0, 0, location),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OperatingDayMidnight(tt.args.at, operatingDayEndSeconds)
			if !got.Equal(tt.want) {
				t.Errorf("OperatingDayMidnight() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatOperatingDaySeconds(t *testing.T) {
	is := is.New(t)
	is.Equal(FormatOperatingDaySeconds(0), "00:00:00")
	is.Equal(FormatOperatingDaySeconds(45000), "12:30:00")
	is.Equal(FormatOperatingDaySeconds(27*3600), "27:00:00")
	is.Equal(FormatOperatingDaySeconds(-5), "00:00:00")
}
