package services

import (
	"context"
	"time"

	"git.solsynth.dev/hypernet/gathering/pkg/internal/errs"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/models"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/recurrence"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type SeriesService struct {
	Deps
	config SessionConfig
}

func NewSeriesService(deps Deps, config SessionConfig) *SeriesService {
	if config.HorizonDays <= 0 {
		config.HorizonDays = recurrence.DefaultHorizonDays
	}
	return &SeriesService{Deps: deps, config: config}
}

type SeriesRequest struct {
	Title           string     `json:"title" validate:"required,max=256"`
	Description     string     `json:"description" validate:"max=4096"`
	Frequency       string     `json:"frequency" validate:"required,oneof=daily weekly biweekly monthly"`
	Days            []int      `json:"days" validate:"dive,min=0,max=6"`
	Count           int        `json:"count" validate:"min=0"`
	Until           *time.Time `json:"until"`
	TimeOfDay       string     `json:"time_of_day" validate:"required"`
	Timezone        string     `json:"timezone" validate:"required"`
	StartsOn        time.Time  `json:"starts_on" validate:"required"`
	DurationMinutes int        `json:"duration_minutes" validate:"required,min=1,max=1440"`
	Capacity        int        `json:"capacity" validate:"min=0"`
	IsPrivate       bool       `json:"is_private"`
}

func (v SeriesRequest) ruleOptions() recurrence.RuleOptions {
	return recurrence.RuleOptions{
		Frequency: recurrence.Frequency(v.Frequency),
		Days: lo.Map(v.Days, func(item int, _ int) time.Weekday {
			return time.Weekday(item)
		}),
		Count: v.Count,
		Until: v.Until,
	}
}

type SeriesPreview struct {
	Rule        string      `json:"rule"`
	Description string      `json:"description"`
	Instants    []time.Time `json:"instants"`
}

// Preview resolves what a series would generate without saving anything.
func (v *SeriesService) Preview(req SeriesRequest) (SeriesPreview, error) {
	rule, err := recurrence.BuildRule(req.ruleOptions())
	if err != nil {
		return SeriesPreview{}, err
	}
	instants, err := recurrence.Expand(rule, req.TimeOfDay, req.Timezone, recurrence.CivilDate(req.StartsOn), v.config.HorizonDays)
	if err != nil {
		return SeriesPreview{}, err
	}
	return SeriesPreview{
		Rule:        rule,
		Description: recurrence.Describe(rule),
		Instants:    instants,
	}, nil
}

// Create saves the series and materializes its sessions over the horizon.
func (v *SeriesService) Create(ctx context.Context, host uint, req SeriesRequest) (models.Series, int64, error) {
	preview, err := v.Preview(req)
	if err != nil {
		return models.Series{}, 0, err
	}

	series := models.Series{
		Title:           req.Title,
		Description:     req.Description,
		HostID:          host,
		Rule:            preview.Rule,
		TimeOfDay:       req.TimeOfDay,
		Timezone:        req.Timezone,
		StartsOn:        recurrence.CivilDate(req.StartsOn),
		DurationMinutes: req.DurationMinutes,
		Capacity:        req.Capacity,
		IsPrivate:       req.IsPrivate,
		IsActive:        true,
	}
	if err := v.Store.CreateSeries(ctx, &series); err != nil {
		return series, 0, err
	}

	created, err := v.materialize(ctx, series, preview.Instants)
	if err != nil {
		return series, created, err
	}
	log.Info().Uint("series", series.ID).Int64("sessions", created).Msg("Series created.")
	return series, created, nil
}

// Deactivate stops a series and cancels its sessions that have not started.
func (v *SeriesService) Deactivate(ctx context.Context, host, id uint) (int64, error) {
	series, err := v.Store.GetSeries(ctx, id)
	if err != nil {
		return 0, err
	}
	if series.HostID != host {
		return 0, errs.Authorization("only the host can stop this series")
	}
	if err := v.Store.SetSeriesActive(ctx, id, false); err != nil {
		return 0, err
	}
	return v.Store.CancelFutureSeriesSessions(ctx, id, v.Store.Now())
}

// ExtendHorizons materializes the instants that entered the horizon since the
// last run for every active series.
func (v *SeriesService) ExtendHorizons(ctx context.Context) (int64, error) {
	series, err := v.Store.ListActiveSeries(ctx)
	if err != nil {
		return 0, err
	}

	now := v.Store.Now()
	var total int64
	for _, item := range series {
		// Expansion is anchored on StartsOn so COUNT and INTERVAL keep their
		// meaning; the horizon is stretched to reach past today. The driver
		// may hand the stored date back in the process zone.
		startsOn := recurrence.CivilDate(item.StartsOn.UTC())
		elapsed := max(0, int(now.Sub(startsOn).Hours()/24))
		instants, err := recurrence.Expand(item.Rule, item.TimeOfDay, item.Timezone, startsOn, elapsed+v.config.HorizonDays)
		if err != nil {
			log.Warn().Err(err).Uint("series", item.ID).Msg("Unable to expand series.")
			continue
		}
		created, err := v.materialize(ctx, item, instants)
		if err != nil {
			return total, err
		}
		total += created
	}
	return total, nil
}

func (v *SeriesService) materialize(ctx context.Context, series models.Series, instants []time.Time) (int64, error) {
	now := v.Store.Now()
	sessions := lo.FilterMap(instants, func(at time.Time, _ int) (models.Session, bool) {
		return models.Session{
			Title:           series.Title,
			Description:     series.Description,
			HostID:          series.HostID,
			SeriesID:        &series.ID,
			ScheduledAt:     at,
			DurationMinutes: series.DurationMinutes,
			Capacity:        series.Capacity,
			IsPrivate:       series.IsPrivate,
			Status:          models.SessionStatusScheduled,
		}, at.After(now)
	})
	return v.Store.CreateSessions(ctx, sessions)
}
