// Package harvest defines the record model and the contracts shared by every
// stage of a harvest run: discovery, asset fetching, cleaning and publishing.
package harvest
