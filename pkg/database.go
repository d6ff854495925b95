package decoder

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
)

const channelMappingQuery = "SELECT Board, Channel, Module, Sipm FROM CitirocChannelMapping WHERE MinRun <= ? and MaxRun >= ? ORDER BY Board, Channel"

func ConnectToDatabase(user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

// LoadLookupFromDB reads the channel mapping valid for runNumber.
func LoadLookupFromDB(db *sqlx.DB, runNumber int, verbosity int) (*ChannelLookup, error) {
	if verbosity > 0 {
		logger.Info("Channel mapping read from DB", "database")
	}
	if verbosity > 2 {
		message := fmt.Sprintf("Query: %s [run %d]", channelMappingQuery, runNumber)
		logger.Info(message, "database")
	}

	rows, err := db.Queryx(channelMappingQuery, runNumber, runNumber)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	entries := make([]ChannelMappingEntry, 0, 64)
	for rows.Next() {
		result := ChannelMappingEntry{}
		if err := rows.StructScan(&result); err != nil {
			return nil, fmt.Errorf("error scanning DB row: %w", err)
		}
		entries = append(entries, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading channel mapping rows: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no channel mapping in database for run %d", runNumber)
	}

	lookup, err := NewChannelLookup(entries)
	if err != nil {
		return nil, fmt.Errorf("error building channel lookup for run %d: %w", runNumber, err)
	}
	return lookup, nil
}
