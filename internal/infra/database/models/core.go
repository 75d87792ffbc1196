package models

import (
	"time"
)

// Archive is one archive in the index scope.
type Archive struct {
	URL   string    `json:"url" gorm:"primaryKey;type:text"`
	CDate time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Record struct {
	URL        string    `json:"url" gorm:"primaryKey;type:text"`
	Collection string    `json:"collection" gorm:"type:text;index"`
	Origin     string    `json:"origin" gorm:"type:text;index"`
	Value      string    `json:"value" gorm:"type:jsonb"`
	CDate      time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate      time.Time `json:"mdate" gorm:"autoUpdateTime"`
}

// RecordIndex is one secondary index entry. A key tuple is stored as its
// string part and its number part; Inf stands for an Infinity part.
type RecordIndex struct {
	ID         int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	RecordURL  string `json:"recordURL" gorm:"type:text;index"`
	Record     Record `json:"record" gorm:"foreignKey:RecordURL;references:URL;constraint:OnDelete:CASCADE;"`
	Collection string `json:"collection" gorm:"type:text;index:idx_record_index_lookup,priority:1"`
	Name       string `json:"name" gorm:"type:text;index:idx_record_index_lookup,priority:2"`
	Str        string `json:"str" gorm:"type:text;index:idx_record_index_lookup,priority:3"`
	Num        int64  `json:"num" gorm:"type:bigint;index:idx_record_index_lookup,priority:4"`
}

func (RecordIndex) TableName() string {
	return "record_indexes"
}
