package db

import (
	"errors"
	"fmt"
	"time"

	"proxygen/internal/apperr"
	"proxygen/internal/model"

	"gorm.io/gorm"
)

// Registry tracks which profiles exist, where they come from and how their
// last refresh went.
type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// Ensure returns the named profile, creating it if needed. A non-empty url or
// collector replaces the stored one.
func (r *Registry) Ensure(name, url, collector string) (*model.Profile, error) {
	var p model.Profile
	err := r.db.Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p = model.Profile{Name: name, URL: url, Collector: collector}
		if err := r.db.Create(&p).Error; err != nil {
			return nil, fmt.Errorf("failed to register profile '%s': %w", name, err)
		}
		return &p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up profile '%s': %w", name, err)
	}

	changes := map[string]interface{}{}
	if url != "" && url != p.URL {
		changes["url"] = url
	}
	if collector != "" && collector != p.Collector {
		changes["collector"] = collector
	}
	if len(changes) > 0 {
		if err := r.db.Model(&p).Updates(changes).Error; err != nil {
			return nil, fmt.Errorf("failed to update profile '%s': %w", name, err)
		}
	}
	return &p, nil
}

func (r *Registry) Get(name string) (*model.Profile, error) {
	var p model.Profile
	err := r.db.Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Newf(apperr.KindNotFound, "profile '%s' is not registered", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up profile '%s': %w", name, err)
	}
	return &p, nil
}

// SetURL re-points a profile at a new subscription url.
func (r *Registry) SetURL(p *model.Profile, url string) error {
	if err := r.db.Model(p).Update("url", url).Error; err != nil {
		return fmt.Errorf("failed to update url of '%s': %w", p.Name, err)
	}
	return nil
}

// List returns all registered profiles ordered by name.
func (r *Registry) List() ([]model.Profile, error) {
	var profiles []model.Profile
	if err := r.db.Order("name asc").Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// RecordSuccess stores the outcome of a successful refresh.
func (r *Registry) RecordSuccess(p *model.Profile, count int, userInfo string, took time.Duration) error {
	now := time.Now()
	return r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(p).Updates(map[string]interface{}{
			"proxy_count":  count,
			"user_info":    userInfo,
			"last_error":   "",
			"refreshed_at": now,
		}).Error
		if err != nil {
			return err
		}
		return tx.Create(&model.UpdateRecord{
			ProfileID:  p.ID,
			Success:    true,
			ProxyCount: count,
			Duration:   took,
		}).Error
	})
}

// RecordFailure keeps the previous counts and stores the error.
func (r *Registry) RecordFailure(p *model.Profile, cause error, took time.Duration) error {
	msg := cause.Error()
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(p).Update("last_error", msg).Error; err != nil {
			return err
		}
		return tx.Create(&model.UpdateRecord{
			ProfileID: p.ID,
			Error:     msg,
			Duration:  took,
		}).Error
	})
}

// History returns the most recent refresh attempts, newest first.
func (r *Registry) History(p *model.Profile, limit int) ([]model.UpdateRecord, error) {
	var records []model.UpdateRecord
	err := r.db.Where("profile_id = ?", p.ID).
		Order("id desc").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// Stale returns profiles whose last successful refresh (or registration, if
// they never refreshed) is older than cutoff.
func (r *Registry) Stale(cutoff time.Time) ([]model.Profile, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}

	// Filtered in Go; sqlite time comparisons depend on the stored format
	var stale []model.Profile
	for _, p := range all {
		last := p.CreatedAt
		if p.RefreshedAt != nil {
			last = *p.RefreshedAt
		}
		if last.Before(cutoff) {
			stale = append(stale, p)
		}
	}
	return stale, nil
}

// Delete removes a profile and its history.
func (r *Registry) Delete(p *model.Profile) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("profile_id = ?", p.ID).Delete(&model.UpdateRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Profile{}, p.ID).Error
	})
}
