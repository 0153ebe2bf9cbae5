package bahn

import "transit-reconciler/internal/provider"

type ort struct {
	ExtID provider.LooseString `json:"extId"`
	ID    string               `json:"id"`
	Name  string               `json:"name"`
	Lat   *float64             `json:"lat"`
	Lon   *float64             `json:"lon"`
}

type verkehrsmittel struct {
	MittelText     string `json:"mittelText"`
	ProduktGattung string `json:"produktGattung"`
}

type abfahrt struct {
	JourneyID      string               `json:"journeyId"`
	BahnhofsID     provider.LooseString `json:"bahnhofsId"`
	Verkehrsmittel verkehrsmittel       `json:"verkehrmittel"`
	Gleis          string               `json:"gleis"`
	EzGleis        *string              `json:"ezGleis"`
	Zeit           string               `json:"zeit"`
	EzZeit         string               `json:"ezZeit"`
	Terminus       string               `json:"terminus"`
}

type abfahrten struct {
	Entries []abfahrt `json:"entries"`
}

type halt struct {
	ExtID               provider.LooseString `json:"extId"`
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	AbfahrtsZeitpunkt   string               `json:"abfahrtsZeitpunkt"`
	EzAbfahrtsZeitpunkt string               `json:"ezAbfahrtsZeitpunkt"`
	AnkunftsZeitpunkt   string               `json:"ankunftsZeitpunkt"`
	EzAnkunftsZeitpunkt string               `json:"ezAnkunftsZeitpunkt"`
	Gleis               string               `json:"gleis"`
	EzGleis             string               `json:"ezGleis"`
	Kategorie           string               `json:"kategorie"`
	Nummer              provider.LooseString `json:"nummer"`
}

type coordinate struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

type polylineGroup struct {
	PolylineDescriptions []struct {
		Coordinates []coordinate `json:"coordinates"`
	} `json:"polylineDescriptions"`
}

type fahrt struct {
	Halte         []halt         `json:"halte"`
	PolylineGroup *polylineGroup `json:"polylineGroup"`
}
