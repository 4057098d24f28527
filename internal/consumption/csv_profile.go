package consumption

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// LoadProfileFromCSV builds a LoadProfileProvider from a load-profile file:
// one row per (month, weekday, hour) slot, columns "month,weekday,hour,energy_wh".
// month is 1-12, weekday is 0-6 with 0=Sunday (time.Weekday's own convention),
// hour is 0-23. This is the Go equivalent of the original implementation's
// CSV-backed consumption forecaster, minus its on-the-fly profile-building
// step (profiles are prepared offline and just loaded here).
func LoadProfileFromCSV(path string, loc *time.Location) (*LoadProfileProvider, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening load profile %q: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 4

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading load profile header: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	var samples []ProfileSample
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading load profile %q: %w", path, err)
		}

		sample, err := parseProfileSample(record)
		if err != nil {
			return nil, fmt.Errorf("parsing load profile %q: %w", path, err)
		}
		samples = append(samples, sample)
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("load profile %q has no data rows", path)
	}

	return NewLoadProfileProvider(loc, samples), nil
}

func validateHeader(header []string) error {
	want := []string{"month", "weekday", "hour", "energy_wh"}
	if len(header) != len(want) {
		return fmt.Errorf("load profile header must have columns %v, got %v", want, header)
	}
	for i, col := range want {
		if header[i] != col {
			return fmt.Errorf("load profile header must have columns %v, got %v", want, header)
		}
	}
	return nil
}

func parseProfileSample(record []string) (ProfileSample, error) {
	month, err := strconv.Atoi(record[0])
	if err != nil || month < 1 || month > 12 {
		return ProfileSample{}, fmt.Errorf("invalid month %q", record[0])
	}
	weekday, err := strconv.Atoi(record[1])
	if err != nil || weekday < 0 || weekday > 6 {
		return ProfileSample{}, fmt.Errorf("invalid weekday %q", record[1])
	}
	hour, err := strconv.Atoi(record[2])
	if err != nil || hour < 0 || hour > 23 {
		return ProfileSample{}, fmt.Errorf("invalid hour %q", record[2])
	}
	energyWh, err := strconv.ParseFloat(record[3], 64)
	if err != nil {
		return ProfileSample{}, fmt.Errorf("invalid energy_wh %q", record[3])
	}

	return ProfileSample{
		Month:    time.Month(month),
		Weekday:  time.Weekday(weekday),
		Hour:     hour,
		EnergyWh: energyWh,
	}, nil
}
