package domain

// Dataset names one of the two accumulated histories. The name is used in
// file names, metric labels, and message headers.
type Dataset string

const (
	WeatherDataset   Dataset = "weather"
	CollisionDataset Dataset = "collisions"
)

// Datasets lists both datasets in processing order.
var Datasets = []Dataset{WeatherDataset, CollisionDataset}

func (d Dataset) String() string { return string(d) }
