package repos

import (
	"github.com/subsnap/subsnap/pkg/database/models"
	"github.com/tauraamui/xerror"
)

type RunRepository struct {
	DB GormWrapper
}

func (r *RunRepository) Create(run *models.ConversionRun) error {
	return r.DB.Create(run).Error()
}

func (r *RunRepository) FindByUUID(uuid string) (models.ConversionRun, error) {
	run := models.ConversionRun{}
	if err := r.DB.Where("uuid = ?", uuid).First(&run).Error(); err != nil {
		return run, xerror.Errorf("run of uuid %s not found", uuid)
	}

	return run, nil
}

func (r *RunRepository) FindByMode(mode string) ([]models.ConversionRun, error) {
	runs := []models.ConversionRun{}
	if err := r.DB.Where("mode = ?", mode).Order("created_at desc").Find(&runs).Error(); err != nil {
		return nil, xerror.Errorf("unable to list runs of mode %s", mode)
	}

	return runs, nil
}
