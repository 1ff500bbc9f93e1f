// fakecatalog is a development stand-in for the dataset catalog REST
// service. It backs the search and patch endpoints with a local SQLite
// file and can seed itself with unscanned datasets, so a crawler can be
// exercised end to end without a real catalog.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	path TEXT NOT NULL,
	version_id INTEGER NOT NULL,
	scan_status TEXT NOT NULL DEFAULT 'UNSCANNED',
	locations JSON NOT NULL,
	size INTEGER,
	checksum TEXT,
	location_scanned TEXT,
	version_metadata JSON,
	PRIMARY KEY (path, version_id)
);
`

type location struct {
	Site     string `json:"site"`
	Resource string `json:"resource"`
}

type dataset struct {
	Path       string     `json:"path"`
	VersionID  int        `json:"versionId"`
	ScanStatus string     `json:"scanStatus"`
	Locations  []location `json:"locations"`
}

type scanResult struct {
	Size            int64          `json:"size"`
	Checksum        string         `json:"checksum"`
	LocationScanned string         `json:"locationScanned"`
	ScanStatus      string         `json:"scanStatus"`
	VersionMetadata map[string]any `json:"versionMetadata"`
}

func main() {
	dbPath := flag.String("db", "./fakecatalog.db", "SQLite file backing the catalog")
	port := flag.String("port", "8180", "Listen port")
	seed := flag.Int("seed", 0, "Seed this many unscanned datasets and exit")
	seedSite := flag.String("seed-site", "NCSA", "Site for seeded dataset locations")
	seedDir := flag.String("seed-dir", "/tmp/imgcrawl-data", "Directory for seeded resource paths")
	flag.Parse()

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		log.Fatal(err)
	}

	if *seed > 0 {
		seedDatasets(db, *seed, *seedSite, *seedDir)
		return
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	router.GET("/search", func(c *gin.Context) { handleSearch(c, db) })
	router.PATCH("/datasets", func(c *gin.Context) { handlePatch(c, db) })

	log.Printf("fakecatalog listening on :%s (db: %s)", *port, *dbPath)
	log.Fatal(router.Run(":" + *port))
}

func seedDatasets(db *sql.DB, n int, site, dir string) {
	for i := 1; i <= n; i++ {
		path := fmt.Sprintf("/LSST/raw/visit-%04d", i)
		locs, _ := json.Marshal([]location{
			{Site: site, Resource: fmt.Sprintf("%s/visit-%04d.fits", dir, i)},
		})
		_, err := db.Exec(
			"INSERT OR REPLACE INTO datasets (path, version_id, scan_status, locations) VALUES (?, ?, 'UNSCANNED', ?)",
			path, 1, string(locs))
		if err != nil {
			log.Printf("Failed to seed %s: %v", path, err)
		}
	}
	log.Printf("Seeded %d unscanned datasets at site %s", n, site)
}

func handleSearch(c *gin.Context, db *sql.DB) {
	folder := c.Query("path")
	query := c.Query("query")
	maxNum := 1000
	if raw := c.Query("max-num"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			maxNum = v
		}
	}

	// The only query the crawler issues; anything else returns everything
	// under the folder.
	where := "path LIKE ?"
	args := []any{folder + "%"}
	if query == "scanStatus = 'UNSCANNED'" {
		where += " AND scan_status = 'UNSCANNED'"
	}
	args = append(args, maxNum)

	rows, err := db.Query(
		"SELECT path, version_id, scan_status, locations FROM datasets WHERE "+where+" ORDER BY path LIMIT ?",
		args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer rows.Close()

	results := []dataset{}
	for rows.Next() {
		var d dataset
		var locsJSON string
		if err := rows.Scan(&d.Path, &d.VersionID, &d.ScanStatus, &locsJSON); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := json.Unmarshal([]byte(locsJSON), &d.Locations); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		results = append(results, d)
	}
	c.JSON(http.StatusOK, results)
}

func handlePatch(c *gin.Context, db *sql.DB) {
	path := c.Query("path")
	versionID, err := strconv.Atoi(c.Query("versionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "versionId must be an integer"})
		return
	}

	var result scanResult
	if err := c.ShouldBindJSON(&result); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var metadataJSON any
	if result.VersionMetadata != nil {
		raw, _ := json.Marshal(result.VersionMetadata)
		metadataJSON = string(raw)
	}

	res, err := db.Exec(`
		UPDATE datasets
		SET scan_status = ?, size = ?, checksum = ?, location_scanned = ?, version_metadata = ?
		WHERE path = ? AND version_id = ?`,
		result.ScanStatus, result.Size, result.Checksum, result.LocationScanned, metadataJSON,
		path, versionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
		return
	}
	c.Status(http.StatusOK)
}
