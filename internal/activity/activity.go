// Package activity holds the activity (event) model shown after
// registration and the built-in list used when the event endpoint fails.
package activity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lyfcircle/circle/internal/metrics"
)

// Date is the calendar slot of an activity.
type Date struct {
	Month   int    `json:"month"`
	Day     int    `json:"day"`
	Weekday string `json:"weekday"`
	Time    string `json:"time"`
}

func (d Date) String() string {
	return fmt.Sprintf("%d/%d %s %s", d.Month, d.Day, d.Weekday, d.Time)
}

// Detail is one question/answer line of an activity's detail page.
type Detail struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Activity is an event a member can join and chat about.
type Activity struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Date           Date     `json:"date"`
	Icebreaker     string   `json:"icebreaker,omitempty"`
	Participants   int      `json:"participants"`
	Emoji          string   `json:"emoji"`
	Location       string   `json:"location"`
	Description    string   `json:"description"`
	HasNewMessages bool     `json:"hasNewMessages"`
	Details        []Detail `json:"details,omitempty"`
}

// Source fetches the current activity list.
type Source interface {
	Events(ctx context.Context) ([]Activity, error)
}

// Listing is what the list screen shows: member activities plus the venue's
// own events.
type Listing struct {
	Activities []Activity
	Featured   []Activity
	// Fallback is set when Activities came from the built-in list.
	Fallback bool
	Err      error
}

// All returns activities followed by featured events.
func (l Listing) All() []Activity {
	out := make([]Activity, 0, len(l.Activities)+len(l.Featured))
	out = append(out, l.Activities...)
	return append(out, l.Featured...)
}

// Find returns the activity with id from the listing.
func (l Listing) Find(id string) (Activity, bool) {
	for _, a := range l.All() {
		if a.ID == id {
			return a, true
		}
	}
	return Activity{}, false
}

// Load fetches the activity list. A fetch failure is logged and answered
// with the built-in list; it is never returned as an error.
func Load(ctx context.Context, src Source, log zerolog.Logger) Listing {
	featured := Featured()
	list, err := src.Events(ctx)
	if err != nil {
		metrics.ActivityFallbacks.Inc()
		log.Warn().Err(err).Msg("failed to load activities, using built-in list")
		return Listing{Activities: Defaults(), Featured: featured, Fallback: true, Err: err}
	}
	if list == nil {
		list = []Activity{}
	}
	return Listing{Activities: list, Featured: featured}
}

// Defaults returns the built-in activity list.
func Defaults() []Activity {
	return []Activity{
		{
			ID:           "1",
			Name:         "Gardens by the Bay Yoga Session",
			Date:         Date{Month: 5, Day: 20, Weekday: "Sat", Time: "07:30"},
			Participants: 3,
			Emoji:        "🧘",
			Location:     "Supertree Grove, Gardens by the Bay",
			Description: "Start your day with a rejuvenating yoga session amidst the iconic Supertrees. " +
				"Experience tranquility in the heart of Singapore's urban oasis.",
			HasNewMessages: true,
		},
		{
			ID:           "2",
			Name:         "Night Cycling at East Coast Park",
			Date:         Date{Month: 5, Day: 21, Weekday: "Sun", Time: "19:30"},
			Participants: 2,
			Emoji:        "🚴",
			Location:     "East Coast Park",
			Description: "Enjoy a refreshing evening cycle along Singapore's scenic East Coast. " +
				"Feel the sea breeze as you ride under the stars.",
		},
		{
			ID:           "3",
			Name:         "Peranakan Cuisine Cooking Class",
			Date:         Date{Month: 5, Day: 22, Weekday: "Mon", Time: "11:00"},
			Participants: 4,
			Emoji:        "🍲",
			Location:     "Katong Kitchen Studio",
			Description: "Learn to cook authentic Peranakan dishes in this hands-on class. " +
				"Discover the rich flavors and traditions of Singaporean Nyonya cuisine.",
			HasNewMessages: true,
		},
		{
			ID:           "4",
			Name:         "Sentosa Island Segway Tour",
			Date:         Date{Month: 5, Day: 27, Weekday: "Sat", Time: "14:00"},
			Participants: 2,
			Emoji:        "🛴",
			Location:     "Sentosa Segway Tours Meeting Point",
			Description: "Explore the beautiful Sentosa Island on a Segway. " +
				"Glide past beaches, forests, and historical sites on this guided tour.",
		},
		{
			ID:           "5",
			Name:         "Batik Painting Workshop",
			Date:         Date{Month: 5, Day: 31, Weekday: "Wed", Time: "16:00"},
			Participants: 5,
			Emoji:        "🎨",
			Location:     "Kampong Gelam Community Club",
			Description: "Immerse yourself in the art of Batik painting. " +
				"Learn traditional techniques and create your own unique Batik masterpiece to take home.",
		},
	}
}

// Featured returns the venue's own events, listed after member activities.
func Featured() []Activity {
	return []Activity{
		{
			ID:           "ewfoij0",
			Name:         "Halloween 2024",
			Date:         Date{Month: 10, Day: 28, Weekday: "Mon", Time: "10:00"},
			Participants: 10,
			Emoji:        "🎃",
			Location:     "lyf Funan Singapore",
			Description: "Join us for a spooky halloween 2024! Make your own witches potions art & craft " +
				"and bring your little ones to make their own pumpkin using playdough, or even get a DIY " +
				"halloween mask to celebrate the occasion! Come together on the eve of halloween to try " +
				"your hand at making your own unique halloween themed mocktail at our 'Potion Bar'. See you there!",
		},
		{
			ID:   "1sefsef",
			Name: "Pay It Forward Movement",
			Date: Date{Month: 11, Day: 15, Weekday: "Fri", Time: "14:00"},
			Icebreaker: "'Two Truths and a Lie' - Each participant takes turns telling three statements " +
				"about themselves; two are true and one is false. Others guess which is the lie.",
			Participants: 50,
			Emoji:        "💌",
			Location:     "lyf Funan Singapore",
			Description: "Write well wishes on a postcard and pass it forward to someone or a random stranger! " +
				"The intention of this movement is to create the ripple effect of the kind wishes to spark " +
				"lights in people's lives so that they know they are not alone. You never know who may just " +
				"need that ounce of light in their life.",
		},
	}
}
