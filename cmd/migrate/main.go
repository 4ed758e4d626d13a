package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/ManuelReschke/SatsFox/app/repository"
	"github.com/ManuelReschke/SatsFox/internal/pkg/database"
	"github.com/ManuelReschke/SatsFox/internal/pkg/env"
)

func main() {
	// Lade Umgebungsvariablen aus .env-Datei
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	driver := strings.ToLower(env.GetEnv("DB_DRIVER", database.DriverMySQL))

	if command == "tenant-create" {
		createTenant(driver)
		return
	}

	dbURL, err := migrationURL(driver)
	if err != nil {
		log.Fatalf("Fehler beim Erstellen der Datenbank-URL: %v", err)
	}

	log.Printf("Verbinde mit Datenbank (%s): %s@%s:%s/%s",
		driver,
		env.GetEnv("DB_USER", "satsfox"),
		env.GetEnv("DB_HOST", "db"),
		env.GetEnv("DB_PORT", defaultPort(driver)),
		env.GetEnv("DB_NAME", "satsfox_db"),
	)

	m, err := migrate.New(
		"file://migrations/"+driver, // Pfad zu den Migrationsdateien
		dbURL,
	)
	if err != nil {
		log.Fatalf("Fehler beim Initialisieren der Migration: %v", err)
	}

	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Printf("Fehler beim Schließen der Migrationsressourcen: %v, %v", sourceErr, dbErr)
		}
	}()

	switch command {
	case "up":
		// Alle ausstehenden Migrationen ausführen
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Fehler beim Ausführen der Migrationen: %v", err)
		} else if err == migrate.ErrNoChange {
			log.Println("Keine Änderungen: Datenbank ist bereits auf dem neuesten Stand")
		} else {
			log.Println("Migrationen erfolgreich ausgeführt")
		}

	case "down":
		// Letzte Migration zurückrollen
		if err := m.Steps(-1); err != nil {
			log.Fatalf("Fehler beim Zurückrollen der letzten Migration: %v", err)
		} else {
			log.Println("Letzte Migration erfolgreich zurückgerollt")
		}

	case "goto":
		if len(os.Args) < 3 {
			log.Fatalf("Bitte geben Sie eine Versionsnummer an")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			log.Fatalf("Ungültige Versionsnummer: %v", err)
		}

		// Zu einer bestimmten Version migrieren
		if err := m.Migrate(uint(version)); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Fehler beim Migrieren zur Version %d: %v", version, err)
		} else if err == migrate.ErrNoChange {
			log.Printf("Keine Änderungen: Datenbank ist bereits auf Version %d", version)
		} else {
			log.Printf("Migration zur Version %d erfolgreich", version)
		}

	case "status":
		// Aktuelle Migrationsversion anzeigen
		version, dirty, err := m.Version()
		if err != nil {
			if err == migrate.ErrNilVersion {
				log.Println("Keine Migrationen wurden bisher ausgeführt")
			} else {
				log.Fatalf("Fehler beim Abrufen der Migrationsversion: %v", err)
			}
		} else {
			dirtyStatus := ""
			if dirty {
				dirtyStatus = " (dirty)"
			}
			log.Printf("Aktuelle Migrationsversion: %d%s", version, dirtyStatus)
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

// migrationURL builds the golang-migrate URL for driver from DB_* settings.
func migrationURL(driver string) (string, error) {
	user := env.GetEnv("DB_USER", "satsfox")
	password := env.GetEnv("DB_PASSWORD", "satsfox")
	host := env.GetEnv("DB_HOST", "db")
	port := env.GetEnv("DB_PORT", defaultPort(driver))
	name := env.GetEnv("DB_NAME", "satsfox_db")

	switch driver {
	case database.DriverMySQL:
		return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true", user, password, host, port, name), nil
	case database.DriverPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(user, password),
			Host:     host + ":" + port,
			Path:     "/" + name,
			RawQuery: "sslmode=" + env.GetEnv("DB_SSLMODE", "disable"),
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("Migrationen werden für DB_DRIVER %q nicht unterstützt (sqlite nutzt AutoMigrate)", driver)
	}
}

func defaultPort(driver string) string {
	if driver == database.DriverPostgres {
		return "5432"
	}
	return "3306"
}

// createTenant legt einen Mandanten an und gibt den API-Schlüssel einmalig aus.
func createTenant(driver string) {
	if len(os.Args) < 3 || strings.TrimSpace(os.Args[2]) == "" {
		log.Fatalf("Bitte geben Sie einen Namen für den Mandanten an")
	}

	db, err := database.Open(driver, database.DSNFromEnv(driver))
	if err != nil {
		log.Fatalf("Fehler beim Verbinden mit der Datenbank: %v", err)
	}
	if driver == database.DriverSQLite {
		if err := database.Migrate(db); err != nil {
			log.Fatalf("Fehler beim Anlegen des Schemas: %v", err)
		}
	}

	tenant := &models.Tenant{Name: strings.TrimSpace(os.Args[2]), Active: true}
	rawKey, err := tenant.IssueAPIKey()
	if err != nil {
		log.Fatalf("Fehler beim Erzeugen des API-Schlüssels: %v", err)
	}
	if err := repository.NewTenantRepository(db).Create(context.Background(), tenant); err != nil {
		log.Fatalf("Fehler beim Anlegen des Mandanten: %v", err)
	}

	log.Printf("Mandant %q angelegt (ID %d)", tenant.Name, tenant.ID)
	fmt.Printf("API-Schlüssel (wird nur einmal angezeigt): %s\n", rawKey)
}

func printUsage() {
	fmt.Println("Verwendung: go run cmd/migrate/main.go [command]")
	fmt.Println("Verfügbare Befehle:")
	fmt.Println("  up                   - Führe alle ausstehenden Migrationen aus")
	fmt.Println("  down                 - Rolle die letzte Migration zurück")
	fmt.Println("  goto N               - Migriere zur Version N")
	fmt.Println("  status               - Zeige aktuelle Migrationsversion an")
	fmt.Println("  tenant-create NAME   - Lege einen Mandanten mit API-Schlüssel an")
}
