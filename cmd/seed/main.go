package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"eduface-backend/cmd"
	"eduface-backend/internal/database"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"gorm.io/gorm"
)

// Seeds the database from a roster CSV exported by the student information
// system. Expected columns, with a header row:
//
//	email,full_name,course_code,course_name,unit_code,unit_name
//
// Rows are idempotent: rerunning the seeder with the same file creates
// nothing new.
type SeedConfig struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`
}

type rosterRow struct {
	email      string
	fullName   string
	courseCode string
	courseName string
	unitCode   string
	unitName   string
}

func main() {
	rosterPath := flag.String("roster", "", "path to the roster CSV")

	cmd.LoadEnvFile()

	var cfg SeedConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	if *rosterPath == "" {
		log.Fatalf("missing required -roster flag")
	}

	rows, err := readRoster(*rosterPath)
	if err != nil {
		log.Fatalf("error reading roster: %v", err)
	}
	log.Printf("loaded %d roster rows from %s", len(rows), *rosterPath)

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	bar := progressbar.NewOptions(len(rows),
		progressbar.OptionSetDescription("seeding roster"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	var created int
	for _, row := range rows {
		n, err := seedRow(db, row)
		if err != nil {
			log.Fatalf("error seeding row for %s: %v", row.email, err)
		}
		created += n
		_ = bar.Add(1)
	}

	log.Printf("roster seeded, %d new records created", created)
}

func readRoster(path string) ([]rosterRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6

	// header
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	var rows []rosterRow
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		row := rosterRow{
			email:      strings.TrimSpace(record[0]),
			fullName:   strings.TrimSpace(record[1]),
			courseCode: strings.TrimSpace(record[2]),
			courseName: strings.TrimSpace(record[3]),
			unitCode:   strings.TrimSpace(record[4]),
			unitName:   strings.TrimSpace(record[5]),
		}
		if row.email == "" || row.courseCode == "" || row.unitCode == "" {
			return nil, fmt.Errorf("row %v is missing email, course_code, or unit_code", record)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// seedRow creates the course, unit, student, and enrollment a roster row
// describes, skipping whatever already exists. Returns the number of records
// created.
func seedRow(db *gorm.DB, row rosterRow) (int, error) {
	created := 0

	err := db.Transaction(func(tx *gorm.DB) error {
		var course database.Course
		res := tx.Where(database.Course{Code: row.courseCode}).Attrs(database.Course{
			Id:   uuid.New(),
			Name: row.courseName,
		}).FirstOrCreate(&course)
		if res.Error != nil {
			return fmt.Errorf("error creating course %s: %w", row.courseCode, res.Error)
		}
		created += int(res.RowsAffected)

		var unit database.Unit
		res = tx.Where(database.Unit{CourseId: course.Id, Code: row.unitCode}).Attrs(database.Unit{
			Id:   uuid.New(),
			Name: row.unitName,
		}).FirstOrCreate(&unit)
		if res.Error != nil {
			return fmt.Errorf("error creating unit %s: %w", row.unitCode, res.Error)
		}
		created += int(res.RowsAffected)

		var student database.User
		res = tx.Where(database.User{Email: row.email}).Attrs(database.User{
			Id:           uuid.New(),
			FullName:     row.fullName,
			Role:         database.RoleStudent,
			CreationTime: time.Now().UTC(),
		}).FirstOrCreate(&student)
		if res.Error != nil {
			return fmt.Errorf("error creating user %s: %w", row.email, res.Error)
		}
		created += int(res.RowsAffected)

		if student.Role != database.RoleStudent {
			return fmt.Errorf("user %s exists with role %s, cannot enroll", row.email, student.Role)
		}

		var enrollment database.Enrollment
		res = tx.Where(database.Enrollment{UnitId: unit.Id, StudentId: student.Id}).Attrs(database.Enrollment{
			CreationTime: time.Now().UTC(),
		}).FirstOrCreate(&enrollment)
		if res.Error != nil {
			return fmt.Errorf("error enrolling %s in %s: %w", row.email, row.unitCode, res.Error)
		}
		created += int(res.RowsAffected)

		return nil
	})
	return created, err
}
