package database

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/arnold/phasetrack-api/internal/logger"
	"github.com/arnold/phasetrack-api/internal/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Seed describes the initial catalog loaded by `phasetrack seed`.
type Seed struct {
	Phases []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"phases"`
	Admin *struct {
		Name       string `yaml:"name"`
		Email      string `yaml:"email"`
		Password   string `yaml:"password"`
		Department string `yaml:"department"`
	} `yaml:"admin"`
}

// DefaultSeed is used when no seed file exists.
const DefaultSeed = `
phases:
  - name: Planning
  - name: Analysis
  - name: Design
  - name: Code
  - name: Test
`

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		data = []byte(DefaultSeed)
	} else if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	for i, p := range s.Phases {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("seed phase %d has no name", i+1)
		}
	}
	return &s, nil
}

// Apply inserts the phases (in file order) and the admin user that are not
// present yet. Existing rows are left untouched, so Apply is safe to rerun.
func (s *Seed) Apply(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for i, p := range s.Phases {
			var existing models.Phase
			err := tx.Where("LOWER(name) = LOWER(?)", p.Name).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			phase := models.Phase{Name: p.Name, Description: p.Description, Order: i + 1}
			if err := tx.Create(&phase).Error; err != nil {
				return fmt.Errorf("seed phase %q: %w", p.Name, err)
			}
			logger.Log.Info("seeded phase", zap.String("name", phase.Name), zap.Int("order", phase.Order))
		}

		if s.Admin == nil || s.Admin.Email == "" {
			return nil
		}
		var count int64
		tx.Model(&models.User{}).Where("email = ?", s.Admin.Email).Count(&count)
		if count > 0 {
			return nil
		}

		deptName := s.Admin.Department
		if deptName == "" {
			deptName = "Administration"
		}
		var dept models.Department
		if err := tx.Where(models.Department{Name: deptName}).Attrs(models.Department{Active: true}).FirstOrCreate(&dept).Error; err != nil {
			return fmt.Errorf("seed department: %w", err)
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(s.Admin.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		admin := models.User{
			DepartmentID: dept.ID,
			Name:         s.Admin.Name,
			Email:        s.Admin.Email,
			Password:     string(hashed),
			IsAdmin:      true,
		}
		if err := tx.Create(&admin).Error; err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		logger.Log.Info("seeded admin user", zap.String("email", admin.Email))
		return nil
	})
}
