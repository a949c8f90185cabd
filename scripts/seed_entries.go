package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"diary/internal/models"
	"diary/internal/store/sqlstore"
)

var sampleEntries = []struct{ title, text string }{
	{"Morning run", "Five kilometres along the river before breakfast"},
	{"Rain", "Stayed in and read most of the afternoon"},
	{"Market", "Bought cherries and far too much bread"},
	{"Call with mum", "She is planning the garden again"},
	{"Cinema", "Saw the new documentary, slow but beautiful"},
	{"Cooking", "Tried the lentil soup recipe, needs more lemon"},
	{"Work", "Long day, finally finished the report"},
	{"Walk", "Took the long way home through the park"},
	{"Friends", "Dinner at Sam's, stayed until midnight"},
	{"Quiet day", "Nothing much happened and that was fine"},
	{"Bike repair", "Fixed the flat tyre myself for once"},
	{"Museum", "The new wing is worth the visit"},
}

func main() {
	driver := flag.String("driver", "sqlite3", "database driver (sqlite3 or postgres)")
	conn := flag.String("conn", "./diary.db", "database connection string")
	days := flag.Int("days", 365, "how many past days to fill")
	flag.Parse()

	store, err := sqlstore.New(*driver, *conn)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()
	inserted, created := 0, 0

	for day := now.AddDate(0, 0, -*days); day.Before(now); day = day.AddDate(0, 0, 1) {
		// 0-3 entries per day
		n := rand.Intn(4)
		for i := 0; i < n; i++ {
			e := sampleEntries[rand.Intn(len(sampleEntries))]
			_, isNew, err := store.AddEntry(ctx, models.DateOf(day), e.title, e.text)
			if err != nil {
				log.Printf("Error inserting entry: %v", err)
				continue
			}
			if isNew {
				created++
			}
			inserted++
		}
	}

	fmt.Printf("Inserted %d entries across %d new days\n", inserted, created)
}
