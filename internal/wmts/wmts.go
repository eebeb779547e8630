// Package wmts renders the service descriptors that let off-the-shelf
// map clients discover the tile cache: WMTS capabilities XML and the
// ESRI VectorTileServer JSON.
package wmts

import (
	"encoding/xml"
	"fmt"
	"strconv"
)

// Web mercator tile grid constants used by both descriptors.
const (
	baseScaleDenominator = 5.590822639508929e8
	topLeftCorner        = "-2.003750834E7 2.0037508E7"
	tileMatrixSetName    = "EPSG:3857"
	pngFormat            = "image/png"
)

type capabilities struct {
	XMLName        xml.Name `xml:"Capabilities"`
	Xmlns          string   `xml:"xmlns,attr"`
	XmlnsGML       string   `xml:"xmlns:gml,attr"`
	XmlnsOWS       string   `xml:"xmlns:ows,attr"`
	XmlnsXlink     string   `xml:"xmlns:xlink,attr"`
	XmlnsXSI       string   `xml:"xmlns:xsi,attr"`
	SchemaLocation string   `xml:"xsi:schemaLocation,attr"`
	Version        string   `xml:"version,attr"`

	ServiceMetadataURL    serviceMetadataURL    `xml:"ServiceMetadataURL"`
	ServiceIdentification serviceIdentification `xml:"ows:ServiceIdentification"`
	ServiceProvider       serviceProvider       `xml:"ows:ServiceProvider"`
	Contents              contents              `xml:"Contents"`
}

type serviceMetadataURL struct {
	Href string `xml:"xlink:href,attr"`
}

type serviceIdentification struct {
	Title              string `xml:"ows:Title"`
	ServiceType        string `xml:"ows:ServiceType"`
	ServiceTypeVersion string `xml:"ows:ServiceTypeVersion"`
	Profile            string `xml:"ows:Profile"`
	Fees               string `xml:"ows:Fees"`
	AccessConstraints  string `xml:"ows:AccessConstraints"`
}

type serviceProvider struct {
	ProviderName   string       `xml:"ows:ProviderName"`
	ProviderSite   hrefAttr     `xml:"ows:ProviderSite"`
	ServiceContact contactBlock `xml:"ows:ServiceContact"`
}

type hrefAttr struct {
	Href string `xml:"xlink:href,attr"`
}

type contactBlock struct {
	IndividualName string `xml:"ows:IndividualName"`
}

type contents struct {
	Layer         layer         `xml:"Layer"`
	TileMatrixSet tileMatrixSet `xml:"TileMatrixSet"`
}

type layer struct {
	Title             string            `xml:"ows:Title"`
	WGS84BoundingBox  wgs84BoundingBox  `xml:"ows:WGS84BoundingBox"`
	Styles            []style           `xml:"Style"`
	ResourceURLs      []resourceURL     `xml:"ResourceURL"`
	Formats           []string          `xml:"Format"`
	TileMatrixSetLink tileMatrixSetLink `xml:"TileMatrixSetLink"`
}

type wgs84BoundingBox struct {
	LowerCorner string `xml:"ows:LowerCorner"`
	UpperCorner string `xml:"ows:UpperCorner"`
}

type style struct {
	IsDefault  string `xml:"isDefault,attr,omitempty"`
	Identifier string `xml:"ows:Identifier"`
}

type resourceURL struct {
	Format       string `xml:"format,attr"`
	ResourceType string `xml:"resourceType,attr"`
	Template     string `xml:"template,attr"`
}

type tileMatrixSetLink struct {
	TileMatrixSet string `xml:"TileMatrixSet"`
}

type tileMatrixSet struct {
	Identifier   string       `xml:"ows:Identifier"`
	SupportedCRS string       `xml:"ows:SupportedCRS"`
	TileMatrices []tileMatrix `xml:"TileMatrix"`
}

type tileMatrix struct {
	Identifier       string `xml:"ows:Identifier"`
	ScaleDenominator string `xml:"ScaleDenominator"`
	TopLeftCorner    string `xml:"TopLeftCorner"`
	TileWidth        int    `xml:"TileWidth"`
	TileHeight       int    `xml:"TileHeight"`
	MatrixWidth      int    `xml:"MatrixWidth"`
	MatrixHeight     int    `xml:"MatrixHeight"`
}

// Capabilities renders the WMTS 1.0.0 capabilities document for one
// raster tile cache implementation. Clients pointed at this document
// discover the resource-oriented tile URL template.
func Capabilities(tileCacheURL, dataset, version, implementation string, maxZoom int, styles []string) ([]byte, error) {
	if len(styles) == 0 {
		styles = []string{"default"}
	}
	styleElems := make([]style, len(styles))
	for i, s := range styles {
		styleElems[i] = style{Identifier: s}
	}
	styleElems[0].IsDefault = "true"

	tileURL := fmt.Sprintf("%s/%s/%s/%s/{TileMatrix}/{TileCol}/{TileRow}.png",
		tileCacheURL, dataset, version, implementation)

	matrices := make([]tileMatrix, 0, maxZoom+1)
	for z := 0; z <= maxZoom; z++ {
		matrices = append(matrices, tileMatrix{
			Identifier:       strconv.Itoa(z),
			ScaleDenominator: strconv.FormatFloat(baseScaleDenominator/float64(int(1)<<z), 'f', -1, 64),
			TopLeftCorner:    topLeftCorner,
			TileWidth:        256,
			TileHeight:       256,
			MatrixWidth:      1 << z,
			MatrixHeight:     1 << z,
		})
	}

	doc := capabilities{
		Xmlns:      "http://www.opengis.net/wmts/1.0",
		XmlnsGML:   "http://www.opengis.net/gml",
		XmlnsOWS:   "http://www.opengis.net/ows/1.1",
		XmlnsXlink: "http://www.w3.org/1999/xlink",
		XmlnsXSI:   "http://www.w3.org/2001/XMLSchema-instance",
		SchemaLocation: "http://www.opengis.net/wmts/1.0 " +
			"http://schemas.opengis.net/wmts/1.0/wmtsGetCapabilities_response.xsd",
		Version: "1.0.0",
		ServiceMetadataURL: serviceMetadataURL{
			Href: fmt.Sprintf("%s/%s/%s/%s/wmts/1.0.0/WMTSCapabilities.xml",
				tileCacheURL, dataset, version, implementation),
		},
		ServiceIdentification: serviceIdentification{
			Title:              "Forest Watch Web Map Tile Service",
			ServiceType:        "OGC WMTS",
			ServiceTypeVersion: "1.0.0",
			Profile:            "http://www.opengis.net/spec/wmts-simple/1.0/conf/simple-profile",
			Fees:               "none",
			AccessConstraints:  "none",
		},
		ServiceProvider: serviceProvider{
			ProviderName:   "Global Forest Watch",
			ProviderSite:   hrefAttr{Href: "https://www.globalforestwatch.org"},
			ServiceContact: contactBlock{IndividualName: "GFW Engineering"},
		},
		Contents: contents{
			Layer: layer{
				Title: dataset,
				WGS84BoundingBox: wgs84BoundingBox{
					LowerCorner: "-180.0 -90.0",
					UpperCorner: "180.0 90.0",
				},
				Styles: styleElems,
				ResourceURLs: []resourceURL{
					{Format: pngFormat, ResourceType: "simpleProfileTile", Template: tileURL},
					{Format: pngFormat, ResourceType: "tile", Template: tileURL},
				},
				Formats:           []string{pngFormat},
				TileMatrixSetLink: tileMatrixSetLink{TileMatrixSet: tileMatrixSetName},
			},
			TileMatrixSet: tileMatrixSet{
				Identifier:   tileMatrixSetName,
				SupportedCRS: "urn:ogc:def:crs:EPSG::3857",
				TileMatrices: matrices,
			},
		},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("wmts capabilities: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
