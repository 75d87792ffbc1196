package domain

type Config struct {
	FQDN       string  `yaml:"fqdn"`
	PrivateKey string  `yaml:"privatekey"`
	Variant    Variant `yaml:"variant"`
	CCID       string  `yaml:"ccid"`
}
