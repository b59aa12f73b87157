package models

import "gorm.io/gorm"

type Model interface{}

var registered = []Model{}

func AutoMigrate(db *gorm.DB) error {
	for _, m := range registered {
		if err := db.AutoMigrate(m); err != nil {
			return err
		}
	}
	return nil
}

func registerForAutomigration(m Model) {
	registered = append(registered, m)
}
