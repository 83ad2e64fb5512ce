package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"idcard/internal/card"
	"idcard/internal/config"
	"idcard/internal/database"
	"idcard/internal/engine"
	"idcard/internal/render"
	"idcard/internal/render/document"
	"idcard/internal/seed"
)

const usage = `usage:
  admin seed   [-force] [-demo-student] [db flags]
  admin render -template ID [-student ID] -out card.pdf|card.png [-copies N] [-grayscale] [-quality draft|standard|high] [db flags]`

type dbFlags struct {
	host, name, user, password, sslmode *string
	port                                *int
}

func registerDBFlags(fs *flag.FlagSet) dbFlags {
	return dbFlags{
		host:     fs.String("db-host", "", "database host (default DATABASE_HOST)"),
		port:     fs.Int("db-port", 0, "database port (default DATABASE_PORT)"),
		name:     fs.String("db-name", "", "database name (default POSTGRES_DB)"),
		user:     fs.String("db-user", "", "database user (default POSTGRES_USER)"),
		password: fs.String("db-password", "", "database password (default POSTGRES_PASSWORD)"),
		sslmode:  fs.String("db-sslmode", "", "database sslmode (default DATABASE_SSLMODE)"),
	}
}

func (f dbFlags) open() (*gorm.DB, error) {
	cfg, err := loadDatabaseConfig(*f.host, *f.port, *f.name, *f.user, *f.password, *f.sslmode)
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	db, err := database.InitDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	var err error
	switch os.Args[1] {
	case "seed":
		err = runSeed(os.Args[2:])
	case "render":
		err = runRender(os.Args[2:], logger)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func runSeed(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	force := fs.Bool("force", false, "reset built-in templates to their seed design")
	demo := fs.Bool("demo-student", false, "insert the sample student used for thumbnails")
	db := registerDBFlags(fs)
	_ = fs.Parse(args)

	conn, err := db.open()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	templates, err := seed.SeedTemplates(ctx, conn, *force)
	if err != nil {
		return err
	}
	settings, err := seed.InitializeSettings(ctx, conn, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("templates written: %d\n", templates)
	fmt.Printf("settings created: %d\n", settings)

	if *demo {
		sample := seed.SampleStudent()
		var existing database.Student
		switch err := conn.WithContext(ctx).First(&existing, "id = ?", sample.ID).Error; {
		case err == nil:
			fmt.Printf("sample student %s already exists\n", sample.ID)
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := conn.WithContext(ctx).Create(&sample).Error; err != nil {
				return fmt.Errorf("create sample student: %w", err)
			}
			fmt.Printf("sample student created: %s\n", sample.ID)
		default:
			return fmt.Errorf("query sample student: %w", err)
		}
	}
	return nil
}

func runRender(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	templateID := fs.String("template", "", "template id (required)")
	studentID := fs.String("student", "", "student id; tokens stay literal when empty")
	out := fs.String("out", "", "output file, .pdf or .png (required)")
	copies := fs.Int("copies", 1, "copies per card (pdf only)")
	grayscale := fs.Bool("grayscale", false, "print in grayscale (pdf only)")
	quality := fs.String("quality", document.QualityStandard, "photo quality: draft, standard or high (pdf only)")
	widthPx := fs.Int("width", 428, "thumbnail width in pixels (png only)")
	renderEngine := fs.String("engine", config.EngineFPDF, "document engine: fpdf or chromium")
	fontDir := fs.String("font-dir", os.Getenv("RENDER_FONT_DIR"), "directory of extra .ttf fonts")
	imageRoot := fs.String("image-root", os.Getenv("RENDER_LOCAL_IMAGE_ROOT"), "root for local photo paths")
	db := registerDBFlags(fs)
	_ = fs.Parse(args)

	if strings.TrimSpace(*templateID) == "" || strings.TrimSpace(*out) == "" {
		return errors.New("-template and -out are required")
	}
	ext := strings.ToLower(filepath.Ext(*out))
	if ext != ".pdf" && ext != ".png" {
		return fmt.Errorf("unsupported output extension %q", ext)
	}

	conn, err := db.open()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_, design, err := database.LoadTemplate(ctx, conn, *templateID)
	if err != nil {
		return err
	}
	settings, err := database.LoadSchoolSettings(ctx, conn)
	if err != nil {
		return err
	}
	var student *card.Student
	if id := strings.TrimSpace(*studentID); id != "" {
		if student, err = database.LoadStudent(ctx, conn, id); err != nil {
			return err
		}
	}

	engines, err := engine.Build(config.RenderConfig{
		CanvasScale:      3,
		FetchTimeout:     10 * time.Second,
		FetchConcurrency: 4,
		FontDir:          *fontDir,
		Engine:           strings.ToLower(*renderEngine),
		LocalImageRoot:   *imageRoot,
		DefaultTextColor: card.DefaultTextColor,
	}, nil, logger)
	if err != nil {
		return err
	}

	c := render.Card{Design: design, Student: student, Settings: settings}
	var (
		data     []byte
		warnings []render.Warning
	)
	if ext == ".png" {
		data, warnings, err = engines.Thumbnailer.Thumbnail(ctx, c, *widthPx)
	} else {
		opts := document.PrintOptions{Copies: *copies, Quality: *quality, ColorMode: document.ColorModeColor}
		if *grayscale {
			opts.ColorMode = document.ColorModeGrayscale
		}
		data, warnings, err = engines.Printer.PrintCards(ctx, []render.Card{c}, opts)
	}
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logger.Warn("render warning",
			slog.Int("code", w.Code),
			slog.String("element_id", w.ElementID),
			slog.String("message", w.Message),
		)
	}

	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(data))
	return nil
}

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	pick := func(flagValue, env, fallback string) string {
		if v := strings.TrimSpace(flagValue); v != "" {
			return v
		}
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
		return fallback
	}

	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if port <= 0 {
		port = 5432
	}

	return config.DatabaseConfig{
		Host:         pick(host, "DATABASE_HOST", "localhost"),
		Port:         port,
		Name:         pick(name, "POSTGRES_DB", "idcard"),
		User:         pick(user, "POSTGRES_USER", "idcard"),
		Password:     pick(password, "POSTGRES_PASSWORD", "idcard"),
		SSLMode:      pick(sslmode, "DATABASE_SSLMODE", "disable"),
		MaxIdleConns: 2,
		MaxOpenConns: 4,
	}, nil
}
