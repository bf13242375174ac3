package developers

import (
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

// UnknownCountry marks activities with no geo information.
const UnknownCountry = "unknown"

// CountryStat is one row of the country breakdown.
type CountryStat struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// CountryBreakdown returns developer activity counts grouped by the country
// recorded on ingested activities, with ISO codes resolved to display names.
func CountryBreakdown(db *gorm.DB, tenantID uint) ([]CountryStat, error) {
	type row struct {
		Country string
		Count   int64
	}

	var rows []row
	err := db.Raw(`
		SELECT COALESCE(NULLIF(country, ''), ?) AS country, COUNT(*) AS count
		FROM activities
		WHERE tenant_id = ?
		GROUP BY country
		ORDER BY count DESC
	`, UnknownCountry, tenantID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	caser := cases.Upper(language.AmericanEnglish)
	countries := gountries.New()

	result := make([]CountryStat, len(rows))
	for i, r := range rows {
		stat := CountryStat{Code: r.Country, Count: r.Count}
		if r.Country == UnknownCountry {
			stat.Name = "Unknown"
		} else {
			stat.Code = caser.String(r.Country)
			if country, err := countries.FindCountryByAlpha(stat.Code); err == nil {
				stat.Name = country.Name.Common
			} else {
				stat.Name = stat.Code
			}
		}
		result[i] = stat
	}

	return result, nil
}
